// ABOUTME: Centralized configuration for the healthdb CLI
// ABOUTME: Loads HEALTHDB_* settings from the environment and .env with validation and defaults
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/harper/healthdb/internal/storage/sqlite"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "HEALTHDB"

// Config holds all configuration for healthdb
type Config struct {
	// Database settings
	DBPath      string        `mapstructure:"DB_PATH"`
	BusyTimeout time.Duration `mapstructure:"BUSY_TIMEOUT"`

	// Migration settings
	BeginRetries int           `mapstructure:"BEGIN_RETRIES"`
	RetryDelay   time.Duration `mapstructure:"RETRY_DELAY"`

	// Logging settings
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFile       string `mapstructure:"LOG_FILE"`
	LogMaxSizeMB  int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
}

var keys = []string{
	"DB_PATH",
	"BUSY_TIMEOUT",
	"BEGIN_RETRIES",
	"RETRY_DELAY",
	"LOG_LEVEL",
	"LOG_FILE",
	"LOG_MAX_SIZE_MB",
	"LOG_MAX_BACKUPS",
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first; variables already set take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("DB_PATH", sqlite.DefaultDBPath())
	v.SetDefault("BUSY_TIMEOUT", 5*time.Second)
	v.SetDefault("BEGIN_RETRIES", 3)
	v.SetDefault("RETRY_DELAY", 100*time.Millisecond)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 10)
	v.SetDefault("LOG_MAX_BACKUPS", 3)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	return cfg, cfg.Validate()
}

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "disabled": true,
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%s_DB_PATH must not be empty", EnvPrefix)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("%s_BUSY_TIMEOUT must not be negative, got %v", EnvPrefix, c.BusyTimeout)
	}
	if c.BeginRetries < 0 || c.BeginRetries > 10 {
		return fmt.Errorf("%s_BEGIN_RETRIES must be 0-10, got %d", EnvPrefix, c.BeginRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%s_RETRY_DELAY must not be negative, got %v", EnvPrefix, c.RetryDelay)
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("%s_LOG_LEVEL must be one of trace, debug, info, warn, error, disabled; got %q", EnvPrefix, c.LogLevel)
	}
	if c.LogMaxSizeMB <= 0 {
		return fmt.Errorf("%s_LOG_MAX_SIZE_MB must be positive, got %d", EnvPrefix, c.LogMaxSizeMB)
	}
	if c.LogMaxBackups < 0 {
		return fmt.Errorf("%s_LOG_MAX_BACKUPS must not be negative, got %d", EnvPrefix, c.LogMaxBackups)
	}
	return nil
}
