// Package syncer implements the incremental run sync step.
//
// A step fetches one page of a job's run history for one partition,
// persists it as an immutable snapshot, advances the partition cursor and
// saves the job state. Steps for the same job never overlap within a
// process, whichever partition they sync.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/livinlefevreloca/runsync/internal/objectstore"
	"github.com/livinlefevreloca/runsync/internal/state"
	"github.com/livinlefevreloca/runsync/internal/upstream"
)

// RunsFetcher returns one page of run history
type RunsFetcher interface {
	GetRunsPage(ctx context.Context, jobID, offset int, partition upstream.Partition) (*upstream.RunPage, error)
}

// Clock provides the snapshot timestamp
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// StepRecord describes one completed step
type StepRecord struct {
	JobID        int
	JobName      string
	Partition    upstream.Partition
	OffsetBefore int
	OffsetAfter  int
	Records      int
	HasMore      bool
	SnapshotKey  string
	Phase        string
}

// StepRecorder receives a record of every completed step
type StepRecorder interface {
	RecordStep(ctx context.Context, rec StepRecord) error
}

// Engine executes sync steps
type Engine struct {
	config   Config
	runs     RunsFetcher
	states   *state.Store
	objects  objectstore.Store
	clock    Clock
	recorder StepRecorder
	phases   *PhaseRecorder
	locks    *keyedLock
	logger   *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the clock used for snapshot keys
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithStepRecorder records every completed step
func WithStepRecorder(r StepRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithPhaseRecorder tracks phase transitions
func WithPhaseRecorder(r *PhaseRecorder) Option {
	return func(e *Engine) { e.phases = r }
}

// NewEngine creates an engine. Snapshots go to objects, state records
// go through states.
func NewEngine(config Config, runs RunsFetcher, states *state.Store, objects objectstore.Store, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		config:  config,
		runs:    runs,
		states:  states,
		objects: objects,
		clock:   systemClock{},
		locks:   newKeyedLock(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Result is the outcome of one step
type Result struct {
	State       *state.JobState
	Records     int
	SnapshotKey string
	Phase       string
}

// Step syncs one page of partition for job and returns the saved state.
// The returned state's HasMore tells the caller whether to step again.
// On error the persisted cursor is left where it was.
func (e *Engine) Step(ctx context.Context, job upstream.Job, partition upstream.Partition) (*state.JobState, error) {
	res, err := e.StepResult(ctx, job, partition)
	if err != nil {
		return nil, err
	}
	return res.State, nil
}

// StepResult is Step with the page details
func (e *Engine) StepResult(ctx context.Context, job upstream.Job, partition upstream.Partition) (*Result, error) {
	if partition.Code() == 0 {
		return nil, fmt.Errorf("%w: %q", upstream.ErrUnknownPartition, partition)
	}

	unlock, err := e.locks.lock(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire step lock for job %d %s: %w", job.ID, partition, err)
	}
	defer unlock()

	prev, err := e.states.Get(ctx, job)
	if err != nil && !objectstore.IsNotFound(err) {
		return nil, err
	}
	from := phaseOf(prev, partition)

	st, err := e.states.Load(ctx, job)
	if err != nil {
		return nil, err
	}

	offset := st.Offset(partition)

	page, err := e.runs.GetRunsPage(ctx, job.ID, offset, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch runs for job %d %s at offset %d: %w", job.ID, partition, offset, err)
	}

	var snapshotKey string
	if len(page.Runs) > 0 {
		snapshotKey, err = e.writeSnapshot(ctx, job, page.Runs)
		if err != nil {
			return nil, err
		}
	}

	if page.NextOffset < offset {
		return nil, fmt.Errorf("cursor for job %d %s would move backwards: %d -> %d", job.ID, partition, offset, page.NextOffset)
	}
	st.Offsets[partition] = page.NextOffset
	st.HasMore = page.HasMore
	if err := e.states.Save(ctx, st); err != nil {
		return nil, err
	}

	to := advance(from, page.HasMore)
	e.logger.Info("sync step complete",
		"job_id", job.ID,
		"partition", partition,
		"offset", offset,
		"next_offset", page.NextOffset,
		"records", len(page.Runs),
		"has_more", page.HasMore,
		"from", from.Name(),
		"to", to.Name())
	if e.phases != nil {
		e.phases.Record(to)
	}

	if e.recorder != nil {
		rec := StepRecord{
			JobID:        job.ID,
			JobName:      job.Name,
			Partition:    partition,
			OffsetBefore: offset,
			OffsetAfter:  page.NextOffset,
			Records:      len(page.Runs),
			HasMore:      page.HasMore,
			SnapshotKey:  snapshotKey,
			Phase:        to.Name(),
		}
		if err := e.recorder.RecordStep(ctx, rec); err != nil {
			e.logger.Warn("failed to record sync step", "job_id", job.ID, "partition", partition, "error", err)
		}
	}

	return &Result{
		State:       st,
		Records:     len(page.Runs),
		SnapshotKey: snapshotKey,
		Phase:       to.Name(),
	}, nil
}

// phaseOf derives the pre-step phase of partition from the record as it was
// stored before this step. HasMore belongs to whichever partition was synced
// last, which that record carries in Status. A nil record is pending.
func phaseOf(st *state.JobState, partition upstream.Partition) Phase {
	switch {
	case st == nil || st.Offset(partition) == 0:
		return &PendingPhase{}
	case st.HasMore && st.Status == string(partition):
		return &InProgressPhase{}
	default:
		return &DrainedPhase{}
	}
}

// writeSnapshot persists runs under a fresh key and returns it
func (e *Engine) writeSnapshot(ctx context.Context, job upstream.Job, runs []json.RawMessage) (string, error) {
	body, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot for job %d: %w", job.ID, err)
	}

	base := state.SnapshotKey(job, e.clock.Now().UTC())
	key := base
	for attempt := 0; ; attempt++ {
		exists, err := e.objects.Exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to check snapshot %s: %w", key, err)
		}
		if !exists {
			break
		}
		if attempt+1 >= e.config.SnapshotKeyAttempts {
			return "", fmt.Errorf("no free snapshot key for job %d after %d attempts", job.ID, attempt+1)
		}
		key = strings.TrimSuffix(base, ".json") + "_" + uuid.NewString()[:8] + ".json"
	}

	if err := e.objects.Put(ctx, key, body); err != nil {
		return "", fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}
	return key, nil
}
