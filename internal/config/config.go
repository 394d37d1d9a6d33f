package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// ThirdPartyFolder is the reserved name of the shared dependency folder.
// No package may be installed under this name.
const ThirdPartyFolder = "third_party"

// EnvPrefix is the prefix of environment overrides (MODMGR_SCRIPT_TIMEOUT, ...).
const EnvPrefix = "MODMGR"

// ScriptConfig controls the external script bridge
type ScriptConfig struct {
	Interpreter     string        `json:"interpreter" mapstructure:"interpreter"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	FilterCallbacks bool          `json:"filterCallbacks" mapstructure:"filter_callbacks"`
	EnvVar          string        `json:"envVar" mapstructure:"env_var"`
}

// HostConfig points at the host application's local API
type HostConfig struct {
	APIURL string `json:"apiURL" mapstructure:"api_url"`
}

// PollConfig controls host change detection
type PollConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// Config represents the main configuration file structure
type Config struct {
	Locale  string       `json:"locale" mapstructure:"locale"` // "auto" or ISO format (e.g., "ko-KR", "en-US")
	BaseDir string       `json:"baseDir,omitempty" mapstructure:"base_dir"`
	Script  ScriptConfig `json:"script" mapstructure:"script"`
	Host    HostConfig   `json:"host" mapstructure:"host"`
	Poll    PollConfig   `json:"poll" mapstructure:"poll"`
}

var (
	cfg     *Config
	cfgOnce sync.Once
	cfgMu   sync.RWMutex
)

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		Locale: "auto",
		Script: ScriptConfig{
			Interpreter:     "python3",
			FilterCallbacks: true,
			EnvVar:          "MODMGR_CONTEXT",
		},
		Host: HostConfig{
			APIURL: "http://127.0.0.1:41595",
		},
		Poll: PollConfig{
			Interval: time.Second,
		},
	}
}

func newViper() *viper.Viper {
	defaults := NewConfig()

	v := viper.New()
	v.SetDefault("locale", defaults.Locale)
	v.SetDefault("base_dir", defaults.BaseDir)
	v.SetDefault("script.interpreter", defaults.Script.Interpreter)
	v.SetDefault("script.timeout", defaults.Script.Timeout)
	v.SetDefault("script.filter_callbacks", defaults.Script.FilterCallbacks)
	v.SetDefault("script.env_var", defaults.Script.EnvVar)
	v.SetDefault("host.api_url", defaults.Host.APIURL)
	v.SetDefault("poll.interval", defaults.Poll.Interval)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// fileConfig mirrors config.json; durations are stored as strings.
type fileConfig struct {
	Locale  string `json:"locale,omitempty"`
	BaseDir string `json:"baseDir,omitempty"`
	Script  struct {
		Interpreter     string `json:"interpreter,omitempty"`
		Timeout         string `json:"timeout,omitempty"`
		FilterCallbacks *bool  `json:"filterCallbacks,omitempty"`
		EnvVar          string `json:"envVar,omitempty"`
	} `json:"script"`
	Host struct {
		APIURL string `json:"apiURL,omitempty"`
	} `json:"host"`
	Poll struct {
		Interval string `json:"interval,omitempty"`
	} `json:"poll"`
}

// Load loads the configuration: defaults, then config.json, then MODMGR_* environment
func Load() (*Config, error) {
	v := newViper()

	data, err := os.ReadFile(ConfigPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		var fc fileConfig
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", ConfigPath(), err)
		}
		setIf(v, "locale", fc.Locale)
		setIf(v, "base_dir", fc.BaseDir)
		setIf(v, "script.interpreter", fc.Script.Interpreter)
		setIf(v, "script.timeout", fc.Script.Timeout)
		setIf(v, "script.env_var", fc.Script.EnvVar)
		if fc.Script.FilterCallbacks != nil {
			v.SetDefault("script.filter_callbacks", *fc.Script.FilterCallbacks)
		}
		setIf(v, "host.api_url", fc.Host.APIURL)
		setIf(v, "poll.interval", fc.Poll.Interval)
	}

	c := &Config{
		Locale:  v.GetString("locale"),
		BaseDir: v.GetString("base_dir"),
		Script: ScriptConfig{
			Interpreter:     v.GetString("script.interpreter"),
			Timeout:         v.GetDuration("script.timeout"),
			FilterCallbacks: v.GetBool("script.filter_callbacks"),
			EnvVar:          v.GetString("script.env_var"),
		},
		Host: HostConfig{APIURL: v.GetString("host.api_url")},
		Poll: PollConfig{Interval: v.GetDuration("poll.interval")},
	}

	if c.Locale == "" {
		c.Locale = "auto"
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = time.Second
	}
	return c, nil
}

// setIf layers a file value between viper defaults and the environment.
func setIf(v *viper.Viper, key, value string) {
	if value != "" {
		v.SetDefault(key, value)
	}
}

// Save saves the configuration to file
func Save(config *Config) error {
	cfgMu.Lock()
	defer cfgMu.Unlock()

	if err := EnsureDir(AppDir()); err != nil {
		return err
	}

	var fc fileConfig
	fc.Locale = config.Locale
	fc.BaseDir = config.BaseDir
	fc.Script.Interpreter = config.Script.Interpreter
	if config.Script.Timeout > 0 {
		fc.Script.Timeout = config.Script.Timeout.String()
	}
	filter := config.Script.FilterCallbacks
	fc.Script.FilterCallbacks = &filter
	fc.Script.EnvVar = config.Script.EnvVar
	fc.Host.APIURL = config.Host.APIURL
	fc.Poll.Interval = config.Poll.Interval.String()

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

// Get returns the current configuration (singleton)
func Get() *Config {
	cfgOnce.Do(func() {
		loaded, err := Load()
		if err != nil {
			loaded = NewConfig()
		}
		cfgMu.Lock()
		cfg = loaded
		cfgMu.Unlock()
	})
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Reload reloads the configuration from file
func Reload() error {
	newCfg, err := Load()
	if err != nil {
		return err
	}
	cfgOnce.Do(func() {})
	cfgMu.Lock()
	cfg = newCfg
	cfgMu.Unlock()
	return nil
}

// Set updates a single key by its dotted name and saves
func Set(key, value string) error {
	c := *Get()
	switch key {
	case "locale":
		c.Locale = value
	case "base_dir":
		c.BaseDir = value
	case "script.interpreter":
		c.Script.Interpreter = value
	case "script.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q for %s: %w", value, key, err)
		}
		c.Script.Timeout = d
	case "script.filter_callbacks":
		switch value {
		case "true":
			c.Script.FilterCallbacks = true
		case "false":
			c.Script.FilterCallbacks = false
		default:
			return fmt.Errorf("invalid value '%s' for %s. Valid values: true, false", value, key)
		}
	case "script.env_var":
		c.Script.EnvVar = value
	case "host.api_url":
		c.Host.APIURL = value
	case "poll.interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q for %s: %w", value, key, err)
		}
		c.Poll.Interval = d
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	if err := Save(&c); err != nil {
		return err
	}
	return Reload()
}

// GetLocale returns the configured locale
func GetLocale() string {
	return Get().Locale
}
