// Package invoker dispatches worker tasks and waits for their results.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Mode is the invocation type of a task
type Mode string

const (
	// ModeRequestResponse waits for the task and returns its payload
	ModeRequestResponse Mode = "RequestResponse"
	// ModeEvent queues the task and returns without a payload
	ModeEvent Mode = "Event"
)

// ErrNoResult means the invocation produced nothing to act on
var ErrNoResult = errors.New("invoker: no result")

// Result is what a task invocation returned
type Result struct {
	StatusCode int
	Payload    []byte
}

// FunctionError is a failure raised inside the invoked task
type FunctionError struct {
	Task    string
	Kind    string
	Payload []byte
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("task %s failed (%s): %s", e.Task, e.Kind, e.Payload)
}

// Invoker runs a named task with a JSON payload
type Invoker interface {
	Invoke(ctx context.Context, task string, mode Mode, payload []byte) (*Result, error)
}

// Config defines how worker tasks are invoked
type Config struct {
	// Backend is "lambda" or "local"
	Backend  string        `toml:"backend"`
	Function string        `toml:"function"`
	Timeout  time.Duration `toml:"timeout"`

	// Debug suppresses every invocation
	Debug bool `toml:"debug"`
}

// DefaultConfig returns default invoker configuration
func DefaultConfig() Config {
	return Config{
		Backend:  "local",
		Function: "runsync-worker",
		Timeout:  15 * time.Minute,
	}
}

// ValidateConfig validates invoker configuration
func ValidateConfig(config Config) error {
	switch config.Backend {
	case "local", "lambda":
	default:
		return fmt.Errorf("backend must be local or lambda, got %q", config.Backend)
	}
	if config.Function == "" {
		return fmt.Errorf("function is required")
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", config.Timeout)
	}
	return nil
}

// Debug swallows every invocation. It stands in for the real invoker
// when a dry run is wanted.
type Debug struct {
	logger *slog.Logger
}

func NewDebug(logger *slog.Logger) *Debug {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debug{logger: logger}
}

func (d *Debug) Invoke(_ context.Context, task string, mode Mode, payload []byte) (*Result, error) {
	d.logger.Debug("debug mode, skipping invocation", "task", task, "mode", mode, "payload", string(payload))
	return nil, ErrNoResult
}
