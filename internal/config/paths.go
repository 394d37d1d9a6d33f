package config

import (
	"os"
	"path/filepath"
)

var (
	homeDir string

	// appDirOverride lets tests and --home relocate every path.
	appDirOverride string
)

func init() {
	var err error
	homeDir, err = os.UserHomeDir()
	if err != nil {
		homeDir = "~"
	}
}

// SetAppDir overrides the application directory. An empty value restores the default.
func SetAppDir(dir string) {
	appDirOverride = dir
}

// AppDir returns the modmgr config directory path
// ~/.config/modmgr/
func AppDir() string {
	if appDirOverride != "" {
		return appDirOverride
	}
	if env := os.Getenv("MODMGR_HOME"); env != "" {
		return env
	}
	return filepath.Join(homeDir, ".config", "modmgr")
}

// ConfigPath returns the config.json file path
// ~/.config/modmgr/config.json
func ConfigPath() string {
	return filepath.Join(AppDir(), "config.json")
}

// BaseDir returns the repository root holding buckets and installed packages.
// Defaults to AppDir() unless base_dir is configured.
func BaseDir() string {
	if dir := Get().BaseDir; dir != "" {
		return dir
	}
	return AppDir()
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
