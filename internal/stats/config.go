package stats

import (
	"fmt"
	"time"
)

// Config defines configuration for the stats collector
type Config struct {
	// Inbox configuration
	InboxBufferSize  int           `toml:"inbox_buffer_size"`
	InboxSendTimeout time.Duration `toml:"inbox_send_timeout"`

	// Completed runs that failed to write are retried on this interval
	FlushInterval time.Duration `toml:"flush_interval"`

	// Timeout applied to each database write
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// DefaultConfig returns default stats collector configuration
func DefaultConfig() Config {
	return Config{
		InboxBufferSize:  1000,
		InboxSendTimeout: 5 * time.Second,
		FlushInterval:    30 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// ValidateConfig checks the collector configuration
func ValidateConfig(config Config) error {
	if config.InboxBufferSize <= 0 {
		return fmt.Errorf("inbox_buffer_size must be positive, got %d", config.InboxBufferSize)
	}
	if config.InboxSendTimeout <= 0 {
		return fmt.Errorf("inbox_send_timeout must be positive, got %v", config.InboxSendTimeout)
	}
	if config.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %v", config.FlushInterval)
	}
	if config.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %v", config.WriteTimeout)
	}
	return nil
}
