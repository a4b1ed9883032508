package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/livinlefevreloca/runsync/internal/db"
	"github.com/livinlefevreloca/runsync/internal/driver"
	"github.com/livinlefevreloca/runsync/internal/invoker"
	"github.com/livinlefevreloca/runsync/internal/orchestrator"
	"github.com/livinlefevreloca/runsync/internal/scheduler"
	"github.com/livinlefevreloca/runsync/internal/stats"
	"github.com/livinlefevreloca/runsync/internal/syncer"
	"github.com/livinlefevreloca/runsync/internal/upstream"
)

// Config represents the application configuration
type Config struct {
	Upstream     upstream.Config         `toml:"upstream"`
	Metadata     upstream.MetadataConfig `toml:"metadata"`
	Store        StoreConfig             `toml:"store"`
	Database     db.Config               `toml:"database"`
	Syncer       syncer.Config           `toml:"syncer"`
	Invoker      invoker.Config          `toml:"invoker"`
	Driver       driver.Config           `toml:"driver"`
	Orchestrator orchestrator.Config     `toml:"orchestrator"`
	Stats        stats.Config            `toml:"stats"`
	Schedule     scheduler.Config        `toml:"schedule"`
	Logging      LoggingConfig           `toml:"logging"`
	Secrets      SecretsConfig           `toml:"secrets"`
	AWS          AWSConfig               `toml:"aws"`
}

// StoreConfig selects where state, snapshots and metadata are written
type StoreConfig struct {
	// Backend is "s3", "sqlite" or "memory"
	Backend   string `toml:"backend"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	PathStyle bool   `toml:"path_style"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// SecretsConfig names the Secrets Manager secret holding credentials
type SecretsConfig struct {
	SecretID string `toml:"secret_id"`
}

// AWSConfig holds AWS client settings. Empty credentials fall back to the
// default provider chain.
type AWSConfig struct {
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	SessionToken    string `toml:"session_token"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Upstream: upstream.DefaultConfig(),
		Metadata: upstream.DefaultMetadataConfig(),
		Store: StoreConfig{
			Backend: "s3",
			Prefix:  "dbt_api/",
		},
		Database: db.Config{
			DSN:          "runsync.db",
			MaxOpenConns: 1,
		},
		Syncer:       syncer.DefaultConfig(),
		Invoker:      invoker.DefaultConfig(),
		Driver:       driver.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		Stats:        stats.DefaultConfig(),
		Schedule:     scheduler.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
	}
}

// LoadFromFile loads configuration from a TOML file over the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Variables from envFile (if present), without overriding the environment
// 4. RUNSYNC_* environment variables
// 5. Command-line flags (handled by caller)
func LoadConfig(configPath, envFile string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		fileConfig, err := LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if the configuration is valid. Upstream credentials are
// checked when the clients are built, since they may arrive from Secrets
// Manager after loading.
func (c *Config) Validate() error {
	// Store validation
	switch c.Store.Backend {
	case "s3":
		if c.Store.Bucket == "" {
			return fmt.Errorf("store bucket must be specified for the s3 backend")
		}
	case "sqlite":
		if !c.Database.Enabled() {
			return fmt.Errorf("the sqlite store backend requires a database dsn")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported store backend: %s (must be s3, sqlite, or memory)", c.Store.Backend)
	}

	// Upstream validation
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base_url must be specified")
	}
	if c.Upstream.RetryMax < 0 || c.Metadata.RetryMax < 0 {
		return fmt.Errorf("retry_max must be non-negative")
	}
	if c.Metadata.URL == "" {
		return fmt.Errorf("metadata url must be specified")
	}

	// Component validation
	if err := invoker.ValidateConfig(c.Invoker); err != nil {
		return fmt.Errorf("invoker: %w", err)
	}
	if err := driver.ValidateConfig(c.Driver); err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	if err := orchestrator.ValidateConfig(c.Orchestrator); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	if err := stats.ValidateConfig(c.Stats); err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	if err := scheduler.ValidateConfig(c.Schedule); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if c.Syncer.SnapshotKeyAttempts <= 0 {
		return fmt.Errorf("syncer snapshot_key_attempts must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}
