package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config defines when the daemon triggers orchestration runs
type Config struct {
	// Standard five-field cron expression or descriptor (@hourly, @every 15m)
	Cron string `toml:"cron"`

	// IANA zone the expression is evaluated in; empty means UTC
	Location string `toml:"location"`

	// Trigger one run immediately on start
	RunOnStart bool `toml:"run_on_start"`

	// How long Stop waits for an in-flight run
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Cron:            "@hourly",
		ShutdownTimeout: 30 * time.Second,
	}
}

// ValidateConfig validates scheduler configuration and returns error if invalid
func ValidateConfig(config Config) error {
	if config.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := cron.ParseStandard(config.Cron); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", config.Cron, err)
	}
	if _, err := loadLocation(config.Location); err != nil {
		return err
	}
	if config.ShutdownTimeout <= 0 {
		return fmt.Errorf("ShutdownTimeout must be positive, got %v", config.ShutdownTimeout)
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", name, err)
	}
	return loc, nil
}
