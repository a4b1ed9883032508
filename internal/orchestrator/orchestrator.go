// Package orchestrator lists the jobs to sync and drives each of them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/livinlefevreloca/runsync/internal/driver"
	"github.com/livinlefevreloca/runsync/internal/invoker"
	"github.com/livinlefevreloca/runsync/internal/stats"
	"github.com/livinlefevreloca/runsync/internal/upstream"
)

// JobLister invokes the jobs worker
type JobLister interface {
	Jobs(ctx context.Context, jobID *int) ([]upstream.Job, error)
}

// JobDriver drains one job
type JobDriver interface {
	DriveJob(ctx context.Context, job upstream.Job) (*driver.JobResult, error)
}

// StatsSink receives run statistics
type StatsSink interface {
	Send(msg stats.Message) bool
}

// Clock provides run timestamps
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Orchestrator runs one sync pass over the listed jobs
type Orchestrator struct {
	config Config
	lister JobLister
	driver JobDriver
	stats  StatsSink
	clock  Clock
	logger *slog.Logger

	// Optional state recorder for testing
	recorder *StateRecorder
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithStats sends run statistics to sink
func WithStats(sink StatsSink) Option {
	return func(o *Orchestrator) { o.stats = sink }
}

// WithClock overrides the clock used for run timestamps
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithStateRecorder records every state a run passes through
func WithStateRecorder(r *StateRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an orchestrator
func New(config Config, lister JobLister, jobDriver JobDriver, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		config: config,
		lister: lister,
		driver: jobDriver,
		clock:  systemClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run lists the jobs (only jobID when set) and drives each one. A listing
// failure aborts the run; per-job failures are recorded in the summary.
// The returned error is non-nil only for a failed listing or cancellation.
func (o *Orchestrator) Run(ctx context.Context, jobID *int) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: o.clock.Now(),
	}
	logger := o.logger.With("run_id", summary.RunID)

	pending := &PendingState{}
	o.record(summary, pending)

	if err := ctx.Err(); err != nil {
		o.finish(summary, pending.ToCancelled())
		return summary, err
	}

	listing := pending.ToListing()
	o.record(summary, listing)

	jobs, err := o.lister.Jobs(ctx, jobID)
	switch {
	case invoker.IsNoResult(err):
		logger.Info("job listing returned no result")
		o.sendStarted(summary, 0)
		o.sendCompleted(summary)
		o.finish(summary, listing.ToCompleted())
		return summary, nil
	case ctx.Err() != nil:
		o.finish(summary, listing.ToCancelled())
		return summary, ctx.Err()
	case err != nil:
		logger.Error("job listing failed", "error", err)
		o.finish(summary, listing.ToFailed())
		return summary, fmt.Errorf("list jobs: %w", err)
	}

	logger.Info("orchestration run started", "jobs", len(jobs))
	o.sendStarted(summary, len(jobs))

	driving := listing.ToDriving()
	o.record(summary, driving)

	summary.Jobs = o.driveAll(ctx, logger, summary.RunID, jobs)
	o.sendCompleted(summary)

	if err := ctx.Err(); err != nil {
		o.finish(summary, driving.ToCancelled())
		logger.Warn("orchestration run cancelled", "jobs", len(jobs), "jobs_failed", summary.Failed())
		return summary, err
	}

	o.finish(summary, driving.ToCompleted())
	logger.Info("orchestration run complete",
		"jobs", len(jobs),
		"jobs_failed", summary.Failed(),
		"steps", summary.Steps(),
		"records", summary.Records(),
		"duration", summary.CompletedAt.Sub(summary.StartedAt))
	return summary, nil
}

func (o *Orchestrator) driveAll(ctx context.Context, logger *slog.Logger, runID string, jobs []upstream.Job) []JobOutcome {
	outcomes := make([]JobOutcome, len(jobs))

	// Goroutines never return errors so one job cannot cancel its siblings
	var g errgroup.Group
	g.SetLimit(o.config.Concurrency)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			outcome := o.driveOne(ctx, job)
			outcomes[i] = outcome

			if outcome.Err != nil {
				logger.Error("job sync failed", "job_id", job.ID, "job_name", job.Name, "error", outcome.Err)
			}
			o.sendJob(runID, outcome)
			return nil
		})
	}
	g.Wait()

	return outcomes
}

func (o *Orchestrator) driveOne(ctx context.Context, job upstream.Job) JobOutcome {
	outcome := JobOutcome{Job: job}
	if err := ctx.Err(); err != nil {
		outcome.Err = err
		return outcome
	}

	if o.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.JobTimeout)
		defer cancel()
	}

	start := o.clock.Now()
	res, err := o.driver.DriveJob(ctx, job)
	outcome.Duration = o.clock.Now().Sub(start)
	outcome.Result = res
	outcome.Err = err
	if outcome.Result == nil && err == nil {
		outcome.Err = errors.New("driver returned no result")
	}
	return outcome
}

func (o *Orchestrator) record(summary *Summary, state State) {
	summary.State = state.Name()
	if o.recorder != nil {
		o.recorder.Record(state)
	}
}

func (o *Orchestrator) finish(summary *Summary, state State) {
	summary.CompletedAt = o.clock.Now()
	o.record(summary, state)
}

func (o *Orchestrator) sendStarted(summary *Summary, jobs int) {
	o.send(stats.Message{
		Kind:      stats.KindRunStarted,
		RunID:     summary.RunID,
		Timestamp: summary.StartedAt,
		Data:      &stats.RunStartedData{JobsTotal: jobs},
	})
}

func (o *Orchestrator) sendJob(runID string, outcome JobOutcome) {
	data := &stats.JobData{JobID: outcome.Job.ID, Failed: outcome.Failed()}
	if r := outcome.Result; r != nil {
		data.Steps = r.Steps()
		data.Records = r.Records()
		data.Snapshots = r.Snapshots()
		data.MetadataPulls = r.MetadataPulls
		data.Failures = r.Failures
	}
	o.send(stats.Message{
		Kind:      stats.KindJobCompleted,
		RunID:     runID,
		Timestamp: o.clock.Now(),
		Data:      data,
	})
}

func (o *Orchestrator) sendCompleted(summary *Summary) {
	o.send(stats.Message{
		Kind:      stats.KindRunCompleted,
		RunID:     summary.RunID,
		Timestamp: o.clock.Now(),
	})
}

func (o *Orchestrator) send(msg stats.Message) {
	if o.stats == nil {
		return
	}
	if !o.stats.Send(msg) {
		o.logger.Warn("dropped stats message", "run_id", msg.RunID, "kind", msg.Kind)
	}
}
