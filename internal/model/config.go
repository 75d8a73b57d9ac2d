package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backend identifiers.
const (
	BackendSQLite = "sqlite"
	BackendKV     = "kv"
)

// StorageSettings selects and configures the persistence backend.
type StorageSettings struct {
	// Backend is "sqlite" (structured, indexed) or "kv" (JSON blob per
	// collection). "sqlite" is attempted first; opening falls back to "kv"
	// when the database cannot be opened.
	Backend string `mapstructure:"backend" yaml:"backend"`

	// SQLitePath is the database file path for the sqlite backend.
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`

	// KVDir is the directory holding collection blob files for the kv
	// backend. Empty means in-memory only.
	KVDir string `mapstructure:"kv_dir" yaml:"kv_dir"`

	// AppPrefix namespaces kv blob files (<prefix>__<collection>.json).
	AppPrefix string `mapstructure:"app_prefix" yaml:"app_prefix"`
}

// PersistSettings tunes the write-behind behavior of the entity stores.
type PersistSettings struct {
	// DebounceMs is how long a store waits after the last mutation before
	// writing the pending records.
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// Window returns the debounce delay as a duration.
func (p PersistSettings) Window() time.Duration {
	return time.Duration(p.DebounceMs) * time.Millisecond
}

// LogSettings configures structured logging.
type LogSettings struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `mapstructure:"level" yaml:"level"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Storage StorageSettings `mapstructure:"storage" yaml:"storage"`
	Persist PersistSettings `mapstructure:"persist" yaml:"persist"`
	Log     LogSettings     `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskboard/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "taskboard", "config.yaml")
}

// defaultDataDir returns the default directory for persisted data.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "taskboard")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dataDir := defaultDataDir()
	return &AppConfig{
		Storage: StorageSettings{
			Backend:    BackendSQLite,
			SQLitePath: filepath.Join(dataDir, "taskboard.db"),
			KVDir:      filepath.Join(dataDir, "collections"),
			AppPrefix:  "taskboard",
		},
		Persist: PersistSettings{
			DebounceMs: 500,
		},
		Log: LogSettings{
			Level: "info",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory and TASKBOARD_* environment variables
// override file values. If the file does not exist, it returns a default
// configuration.
func LoadConfig(path string) (*AppConfig, error) {
	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKBOARD")
	v.AutomaticEnv()

	defaults := defaultAppConfig()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("storage.backend", defaults.Storage.Backend)
	v.SetDefault("storage.sqlite_path", defaults.Storage.SQLitePath)
	v.SetDefault("storage.kv_dir", defaults.Storage.KVDir)
	v.SetDefault("storage.app_prefix", defaults.Storage.AppPrefix)
	v.SetDefault("persist.debounce_ms", defaults.Persist.DebounceMs)
	v.SetDefault("log.level", defaults.Log.Level)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Storage.Backend != BackendSQLite && cfg.Storage.Backend != BackendKV {
		return nil, fmt.Errorf("config %s: unknown storage backend %q", path, cfg.Storage.Backend)
	}
	if cfg.Persist.DebounceMs <= 0 {
		cfg.Persist.DebounceMs = defaults.Persist.DebounceMs
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("storage", cfg.Storage)
	v.Set("persist", cfg.Persist)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
