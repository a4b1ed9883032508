package orchestrator

import (
	"fmt"
	"time"
)

// Config controls job fan-out
type Config struct {
	// Number of jobs driven at once; 1 drives them in listing order
	Concurrency int `toml:"concurrency"`

	// Upper bound on a single job's drive, 0 for no bound
	JobTimeout time.Duration `toml:"job_timeout"`
}

// DefaultConfig returns default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		Concurrency: 1,
	}
}

// ValidateConfig validates orchestrator configuration
func ValidateConfig(config Config) error {
	if config.Concurrency < 1 {
		return fmt.Errorf("Concurrency must be at least 1, got %d", config.Concurrency)
	}
	if config.JobTimeout < 0 {
		return fmt.Errorf("JobTimeout must be non-negative, got %v", config.JobTimeout)
	}
	return nil
}
