// Package scheduler re-triggers orchestration runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/livinlefevreloca/runsync/internal/orchestrator"
)

// Runner performs one orchestration run
type Runner interface {
	Run(ctx context.Context, jobID *int) (*orchestrator.Summary, error)
}

// Scheduler triggers the runner on a cron schedule. A tick that arrives
// while a run is still in flight is skipped.
type Scheduler struct {
	config Config
	runner Runner
	jobID  *int
	logger *slog.Logger

	cron  *cron.Cron
	job   cron.Job
	entry cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc

	triggered atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	mu      sync.Mutex
	last    *orchestrator.Summary
	started bool
}

// New creates a scheduler that runs jobID (all jobs when nil) on schedule
func New(config Config, runner Runner, jobID *int, logger *slog.Logger) (*Scheduler, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	loc, err := loadLocation(config.Location)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		config: config,
		runner: runner,
		jobID:  jobID,
		logger: logger,
		cron:   cron.New(cron.WithLocation(loc), cron.WithLogger(cl)),
	}
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.trigger))
	return s, nil
}

// Start registers the schedule and starts the cron loop. Runs use ctx
// until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	entry, err := s.cron.AddJob(s.config.Cron, s.job)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to add schedule: %w", err)
	}
	s.entry = entry

	s.cron.Start()
	s.started = true
	s.logger.Info("scheduler started", "cron", s.config.Cron, "run_on_start", s.config.RunOnStart)

	if s.config.RunOnStart {
		go s.job.Run()
	}
	return nil
}

// Stop halts the schedule and waits up to ShutdownTimeout for an in-flight
// run, after which the run's context is cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	s.cron.Remove(s.entry)
	select {
	case <-done.Done():
	case <-time.After(s.config.ShutdownTimeout):
		s.logger.Warn("in-flight run did not finish, cancelling", "timeout", s.config.ShutdownTimeout)
	}
	s.cancel()
	s.logger.Info("scheduler stopped",
		"triggered", s.triggered.Load(),
		"completed", s.completed.Load(),
		"failed", s.failed.Load())
}

// Serve runs the scheduler until ctx is done
func (s *Scheduler) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Next returns the next scheduled trigger time, zero if not started
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Triggered returns the number of runs started
func (s *Scheduler) Triggered() int64 { return s.triggered.Load() }

// Completed returns the number of runs that finished without error
func (s *Scheduler) Completed() int64 { return s.completed.Load() }

// Failed returns the number of runs that returned an error
func (s *Scheduler) Failed() int64 { return s.failed.Load() }

// LastSummary returns the summary of the most recent run
func (s *Scheduler) LastSummary() *orchestrator.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) trigger() {
	ctx := s.ctx
	if ctx == nil || ctx.Err() != nil {
		return
	}

	n := s.triggered.Add(1)
	s.logger.Info("scheduled run triggered", "trigger", n)

	summary, err := s.runner.Run(ctx, s.jobID)

	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()

	if err != nil {
		s.failed.Add(1)
		s.logger.Error("scheduled run failed", "trigger", n, "error", err)
		return
	}
	s.completed.Add(1)

	attrs := []any{"trigger", n}
	if summary != nil {
		attrs = append(attrs, "run_id", summary.RunID, "jobs", len(summary.Jobs), "jobs_failed", summary.Failed())
	}
	s.logger.Info("scheduled run complete", attrs...)
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
