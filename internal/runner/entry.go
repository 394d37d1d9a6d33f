package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/egoavara/modmgr/internal/errs"
)

// LuaExt is the extension of in-process implementation files.
const LuaExt = ".lua"

// StylesheetFile is loaded next to the entry file when present.
const StylesheetFile = "style.css"

// entryCandidates are tried in order when an entry path is a directory.
var entryCandidates = []string{"index", "main"}

// ErrEntryNotFound is returned when no entry file can be resolved.
var ErrEntryNotFound = fmt.Errorf("%w: entry file", errs.ErrNotFound)

// ResolveEntry returns the entry file for path. A file is returned as is; for a
// directory, index<ext> is preferred over main<ext>.
func ResolveEntry(path, ext string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		// "foo" may name "foo.lua"
		if os.IsNotExist(err) && !strings.HasSuffix(path, ext) {
			if fileExists(path + ext) {
				return path + ext, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}
	if !info.IsDir() {
		return path, nil
	}

	for _, base := range entryCandidates {
		candidate := filepath.Join(path, base+ext)
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no index%s or main%s in %s", ErrEntryNotFound, ext, ext, path)
}

// HasManifest reports whether dir contains mod.json.
func HasManifest(dir string) bool {
	return fileExists(filepath.Join(dir, ManifestFile))
}

// HasImplementationFiles reports whether dir directly contains a file with ext.
func HasImplementationFiles(dir, ext string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
			return true
		}
	}
	return false
}

// IsLegacyLayout is the structural v1 predicate: no manifest and at least one
// implementation file.
func IsLegacyLayout(dir string) bool {
	return !HasManifest(dir) && HasImplementationFiles(dir, LuaExt)
}

// ManifestType returns the type tag declared in dir/mod.json, or "" when the
// manifest is absent or unreadable.
func ManifestType(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return ""
	}
	var m struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &m) != nil {
		return ""
	}
	return m.Type
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
