package syncer

import (
	"fmt"
)

// Config defines configuration for the sync engine
type Config struct {
	// Attempts at finding a free snapshot key before giving up
	SnapshotKeyAttempts int `toml:"snapshot_key_attempts"`
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{
		SnapshotKeyAttempts: 3,
	}
}

// validateConfig validates engine configuration and returns error if invalid
func validateConfig(config Config) error {
	if config.SnapshotKeyAttempts <= 0 {
		return fmt.Errorf("SnapshotKeyAttempts must be positive, got %d", config.SnapshotKeyAttempts)
	}
	return nil
}
