// Package config holds the crawler's settings. Values come from, in
// increasing precedence: built-in defaults, the config file, BUGCRAWL_
// environment variables and command line flags bound with BindPFlag.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/codeface/bugcrawl/internal/debug"
)

// EnvPrefix prefixes every environment variable read by the config.
const EnvPrefix = "BUGCRAWL"

// Cool-down scopes.
const (
	CooldownScopeWorker = "worker"
	CooldownScopeGlobal = "global"
)

// Identity modes.
const (
	IdentityStore = "store"
	IdentityHTTP  = "http"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
//
// The config file is the one named by explicitPath, else the first
// .bugcrawl/config.yaml found walking up from the working directory,
// else ~/.config/bugcrawl/config.yaml.
func Initialize(explicitPath ...string) error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false
	if len(explicitPath) > 0 && explicitPath[0] != "" {
		v.SetConfigFile(explicitPath[0])
		configFileSet = true
	}

	if !configFileSet {
		if cwd, err := os.Getwd(); err == nil {
			for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
				configPath := filepath.Join(dir, ".bugcrawl", "config.yaml")
				if _, err := os.Stat(configPath); err == nil {
					v.SetConfigFile(configPath)
					configFileSet = true
					break
				}
			}
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "bugcrawl", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// BUGCRAWL_MAX_ATTEMPTS maps to "max-attempts", BUGCRAWL_SQLITE_PATH
	// to "sqlite.path".
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("cache-dir", "./cache")
	v.SetDefault("jobs", 4)
	v.SetDefault("cooldown", "180s")
	v.SetDefault("cooldown-scope", CooldownScopeWorker)
	v.SetDefault("max-attempts", 0)
	v.SetDefault("http-timeout", "30s")
	v.SetDefault("page-size", 1000)
	v.SetDefault("product-as-project", false)
	v.SetDefault("json-logs", false)

	v.SetDefault("sink", "sqlite")
	v.SetDefault("sqlite.path", "bugcrawl.db")
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.connect-timeout", "30s")

	v.SetDefault("identity.mode", IdentityStore)
	v.SetDefault("identity.url", "")

	v.SetDefault("telemetry.enabled", false)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("Debug: loaded config from %s\n", v.ConfigFileUsed())
	} else {
		debug.Logf("Debug: no config.yaml found; using defaults and environment variables\n")
	}
	return nil
}

// ResetForTesting clears the config state, allowing Initialize() to be called again.
// WARNING: Not thread-safe. Only call from single-threaded test contexts.
func ResetForTesting() {
	v = nil
	boundFlags = map[string]*pflag.Flag{}
}

// Validate checks values that have a closed set of choices.
func Validate() error {
	if v == nil {
		return fmt.Errorf("config not initialized")
	}
	switch s := GetString("cooldown-scope"); s {
	case CooldownScopeWorker, CooldownScopeGlobal:
	default:
		return fmt.Errorf("cooldown-scope must be %q or %q, got %q", CooldownScopeWorker, CooldownScopeGlobal, s)
	}
	switch m := GetString("identity.mode"); m {
	case IdentityStore:
	case IdentityHTTP:
		if GetString("identity.url") == "" {
			return fmt.Errorf("identity.mode=http requires identity.url")
		}
	default:
		return fmt.Errorf("identity.mode must be %q or %q, got %q", IdentityStore, IdentityHTTP, m)
	}
	if GetInt("jobs") < 1 {
		return fmt.Errorf("jobs must be at least 1")
	}
	if GetInt("max-attempts") < 0 {
		return fmt.Errorf("max-attempts must not be negative")
	}
	return nil
}

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// EnvVar returns the environment variable bound to key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// GetValueSource returns the source of a configuration value.
// Priority (highest to lowest): flag > env var > config file > default
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}
	if f, ok := boundFlags[key]; ok && f.Changed {
		return SourceFlag
	}
	if os.Getenv(EnvVar(key)) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

var boundFlags = map[string]*pflag.Flag{}

// BindPFlag makes flag override key when it is set on the command line.
func BindPFlag(key string, flag *pflag.Flag) error {
	if v == nil {
		return fmt.Errorf("viper not initialized")
	}
	if flag == nil {
		return fmt.Errorf("flag for %q is nil", key)
	}
	boundFlags[key] = flag
	return v.BindPFlag(key, flag)
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// AllSettings returns every resolved setting.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}
