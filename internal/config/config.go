// Package config provides configuration management for keeper.
//
// Settings live in ~/.heritagewhisper/settings.json as a flat map of
// env-style keys, so the same names work as environment variables.
// Environment variables override file values.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	json "github.com/goccy/go-json"
)

// Defaults.
const (
	DefaultWorkerPort = 37820
	DefaultMaxConns   = 4
	DefaultDBFile     = "keeper.db"
)

// Config holds runtime configuration for the keeper service.
type Config struct {
	WorkerPort      int    // HTTP listen port
	DBPath          string // SQLite path, ignored when PostgresDSN is set
	PostgresDSN     string
	MaxConns        int
	RedisAddr       string // empty disables the Redis rotation ledger
	OpenAIKey       string
	ForceCheapModel bool // route every generation kind to the cheapest model
	SweepInterval   int  // minutes between expiry sweeps, 0 disables
	AuthSecret      string
}

// settingsFile is the on-disk representation: flat env-style keys.
type settingsFile map[string]json.RawMessage

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		WorkerPort:    DefaultWorkerPort,
		DBPath:        DBPath(),
		MaxConns:      DefaultMaxConns,
		SweepInterval: 60,
	}
}

// DataDir returns the keeper data directory (~/.heritagewhisper).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".heritagewhisper")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), DefaultDBFile)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o755)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	defaults := map[string]interface{}{
		"HW_WORKER_PORT": DefaultWorkerPort,
		"HW_MAX_CONNS":   DefaultMaxConns,
	}
	data, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EnsureAll creates the data directory and default settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads settings from disk, then applies environment overrides.
// A missing settings file is not an error; defaults are used.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err == nil {
		var file settingsFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, err
		}
		applySettings(cfg, file)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applySettings(cfg *Config, file settingsFile) {
	if v, ok := intSetting(file, "HW_WORKER_PORT"); ok {
		cfg.WorkerPort = v
	}
	if v, ok := intSetting(file, "HW_MAX_CONNS"); ok {
		cfg.MaxConns = v
	}
	if v, ok := intSetting(file, "HW_SWEEP_INTERVAL_MINUTES"); ok {
		cfg.SweepInterval = v
	}
	if v, ok := stringSetting(file, "HW_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := stringSetting(file, "HW_POSTGRES_DSN"); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := stringSetting(file, "HW_REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := stringSetting(file, "HW_OPENAI_API_KEY"); ok {
		cfg.OpenAIKey = v
	}
	if v, ok := stringSetting(file, "HW_AUTH_SECRET"); ok {
		cfg.AuthSecret = v
	}
	if v, ok := boolSetting(file, "HW_FORCE_CHEAP_MODEL"); ok {
		cfg.ForceCheapModel = v
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HW_WORKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPort = port
		}
	}
	if v := os.Getenv("HW_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConns = n
		}
	}
	if v := os.Getenv("HW_SWEEP_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SweepInterval = n
		}
	}
	if v := os.Getenv("HW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("HW_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("HW_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("HW_OPENAI_API_KEY"); v != "" {
		cfg.OpenAIKey = v
	}
	if v := os.Getenv("HW_AUTH_SECRET"); v != "" {
		cfg.AuthSecret = v
	}
	if v := os.Getenv("HW_FORCE_CHEAP_MODEL"); v != "" {
		cfg.ForceCheapModel = v == "1" || v == "true"
	}
}

func intSetting(file settingsFile, key string) (int, bool) {
	raw, ok := file[key]
	if !ok {
		return 0, false
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func stringSetting(file settingsFile, key string) (string, bool) {
	raw, ok := file[key]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

func boolSetting(file settingsFile, key string) (bool, bool) {
	raw, ok := file[key]
	if !ok {
		return false, false
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, false
	}
	return v, true
}
