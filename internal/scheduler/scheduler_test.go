package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/runsync/internal/orchestrator"
	"github.com/livinlefevreloca/runsync/internal/testutil"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	jobIDs  []*int
	running atomic.Int32
	peak    atomic.Int32
	block   chan struct{}
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, jobID *int) (*orchestrator.Summary, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	if n > f.peak.Load() {
		f.peak.Store(n)
	}

	f.mu.Lock()
	f.calls++
	f.jobIDs = append(f.jobIDs, jobID)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Summary{RunID: "run"}, nil
}

func (f *fakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() Config {
	config := DefaultConfig()
	config.ShutdownTimeout = time.Second
	return config
}

// =============================================================================
// Config Tests
// =============================================================================

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig(DefaultConfig()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty cron", func(c *Config) { c.Cron = "" }},
		{"bad cron", func(c *Config) { c.Cron = "every day" }},
		{"six fields", func(c *Config) { c.Cron = "0 0 * * * *" }},
		{"bad location", func(c *Config) { c.Location = "Mars/Olympus" }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			assert.Error(t, ValidateConfig(config))
		})
	}
}

func TestValidateConfig_Accepts(t *testing.T) {
	for _, expr := range []string{"0 2 * * *", "*/15 * * * *", "@daily", "@every 90s"} {
		config := DefaultConfig()
		config.Cron = expr
		assert.NoError(t, ValidateConfig(config), expr)
	}
}

// =============================================================================
// Scheduler Tests
// =============================================================================

func TestScheduler_RunOnStart(t *testing.T) {
	runner := &fakeRunner{}
	config := testConfig()
	config.RunOnStart = true
	jobID := 7

	s, err := New(config, runner, &jobID, testutil.NewTestLogger().Logger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.True(t, testutil.WaitFor(t, func() bool { return s.Completed() == 1 }, time.Second))
	assert.Equal(t, 1, runner.Calls())
	require.NotNil(t, runner.jobIDs[0])
	assert.Equal(t, 7, *runner.jobIDs[0])
	assert.Equal(t, "run", s.LastSummary().RunID)
}

func TestScheduler_Tick(t *testing.T) {
	runner := &fakeRunner{}
	config := testConfig()
	config.Cron = "@every 1s"

	s, err := New(config, runner, nil, testutil.NewTestLogger().Logger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.False(t, s.Next().IsZero())
	require.True(t, testutil.WaitFor(t, func() bool { return runner.Calls() >= 1 }, 3*time.Second))
	assert.Nil(t, runner.jobIDs[0])
}

func TestScheduler_SkipsWhileRunning(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	logs := testutil.NewTestLogger()

	s, err := New(testConfig(), runner, nil, logs.Logger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	go s.job.Run()
	require.True(t, testutil.WaitFor(t, func() bool { return runner.Calls() == 1 }, time.Second))

	// Overlapping tick is dropped
	s.job.Run()
	assert.Equal(t, 1, runner.Calls())
	assert.NotEmpty(t, logs.FindMessage("cron: skip"))

	close(runner.block)
	require.True(t, testutil.WaitFor(t, func() bool { return s.Completed() == 1 }, time.Second))

	// The slot frees once the first run returns
	require.True(t, testutil.WaitFor(t, func() bool {
		s.job.Run()
		return runner.Calls() == 2
	}, time.Second))
	assert.Equal(t, int32(1), runner.peak.Load())
}

func TestScheduler_FailedRun(t *testing.T) {
	runner := &fakeRunner{err: errors.New("list jobs: upstream down")}
	logs := testutil.NewTestLogger()

	s, err := New(testConfig(), runner, nil, logs.Logger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.job.Run()
	assert.Equal(t, int64(1), s.Failed())
	assert.Equal(t, int64(0), s.Completed())
	assert.Len(t, logs.FindMessage("scheduled run failed"), 1)
}

func TestScheduler_StopCancelsInFlightRun(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	config := testConfig()
	config.ShutdownTimeout = 20 * time.Millisecond

	s, err := New(config, runner, nil, testutil.NewTestLogger().Logger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	go s.job.Run()
	require.True(t, testutil.WaitFor(t, func() bool { return runner.Calls() == 1 }, time.Second))

	s.Stop()
	require.True(t, testutil.WaitFor(t, func() bool { return s.Failed() == 1 }, time.Second))

	// Ticks after stop do nothing
	s.job.Run()
	assert.Equal(t, 1, runner.Calls())
}

func TestScheduler_StartTwice(t *testing.T) {
	s, err := New(testConfig(), &fakeRunner{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_RestartKeepsOneEntry(t *testing.T) {
	s, err := New(testConfig(), &fakeRunner{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()
	assert.Empty(t, s.cron.Entries())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Len(t, s.cron.Entries(), 1)
	assert.False(t, s.Next().IsZero())
}

func TestScheduler_Serve(t *testing.T) {
	runner := &fakeRunner{}
	config := testConfig()
	config.RunOnStart = true

	s, err := New(config, runner, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.True(t, testutil.WaitFor(t, func() bool { return runner.Calls() == 1 }, time.Second))
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
}
