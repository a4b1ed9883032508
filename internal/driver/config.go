package driver

import "fmt"

// Config defines how a job's backlog is drained
type Config struct {
	// Upper bound on steps per partition per drive, 0 for no bound
	MaxStepsPerDrain int `toml:"max_steps_per_drain"`

	// Queue metadata pulls instead of waiting for each one
	AsyncMetadata bool `toml:"async_metadata"`
}

// DefaultConfig returns default driver configuration
func DefaultConfig() Config {
	return Config{}
}

// ValidateConfig validates driver configuration
func ValidateConfig(config Config) error {
	if config.MaxStepsPerDrain < 0 {
		return fmt.Errorf("MaxStepsPerDrain must be non-negative, got %d", config.MaxStepsPerDrain)
	}
	return nil
}
