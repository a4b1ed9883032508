// Package state persists the per-job sync record.
//
// A record tracks, for every run partition, how many run records have been
// persisted so far. That count is also the offset of the next page to fetch.
// The store does no locking; callers serialize access per job.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/livinlefevreloca/runsync/internal/objectstore"
	"github.com/livinlefevreloca/runsync/internal/upstream"
)

var ErrCorruptState = errors.New("state: corrupt job state record")

// JobState is the persisted sync record of one job
type JobState struct {
	ID      int                        `json:"id"`
	Name    string                     `json:"name"`
	Status  string                     `json:"status"`
	Offsets map[upstream.Partition]int `json:"offsets"`
	HasMore bool                       `json:"hasMore"`
}

// New returns the initial record for job
func New(job upstream.Job) *JobState {
	offsets := make(map[upstream.Partition]int, len(upstream.Partitions))
	for _, p := range upstream.Partitions {
		offsets[p] = 0
	}
	return &JobState{
		ID:      job.ID,
		Name:    job.Name,
		Status:  job.Status,
		Offsets: offsets,
	}
}

// Offset returns the cursor of partition p
func (s *JobState) Offset(p upstream.Partition) int {
	return s.Offsets[p]
}

// Job returns the job the record belongs to
func (s *JobState) Job() upstream.Job {
	return upstream.Job{ID: s.ID, Name: s.Name, Status: s.Status}
}

// Marshal encodes the record as two-space indented JSON
func (s *JobState) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Store loads and saves job state records in an object store
type Store struct {
	objects objectstore.Store
	logger  *slog.Logger
}

// NewStore creates a state store over objects
func NewStore(objects objectstore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{objects: objects, logger: logger}
}

// Load returns the record for job, creating it when absent. An existing
// record takes job.Status when the job carries one. The resulting record
// is written back before returning.
func (s *Store) Load(ctx context.Context, job upstream.Job) (*JobState, error) {
	key := StateKey(job.ID, job.Name)

	body, err := s.objects.Get(ctx, key)
	if err != nil && !objectstore.IsNotFound(err) {
		return nil, fmt.Errorf("failed to read state for job %d: %w", job.ID, err)
	}

	var st *JobState
	if isEmptyRecord(body) {
		s.logger.Info("initializing job state", "job_id", job.ID, "key", key)
		st = New(job)
	} else {
		st, err = decode(body)
		if err != nil {
			return nil, fmt.Errorf("job %d at %s: %w", job.ID, key, err)
		}
		if job.Status != "" {
			st.Status = job.Status
		}
	}

	if err := s.Save(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Get reads the record for job without creating or modifying it
func (s *Store) Get(ctx context.Context, job upstream.Job) (*JobState, error) {
	key := StateKey(job.ID, job.Name)

	body, err := s.objects.Get(ctx, key)
	if err != nil {
		if objectstore.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read state for job %d: %w", job.ID, err)
	}
	if isEmptyRecord(body) {
		return nil, objectstore.ErrNotFound
	}
	st, err := decode(body)
	if err != nil {
		return nil, fmt.Errorf("job %d at %s: %w", job.ID, key, err)
	}
	return st, nil
}

// Save overwrites the record unconditionally
func (s *Store) Save(ctx context.Context, st *JobState) error {
	body, err := st.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode state for job %d: %w", st.ID, err)
	}
	if err := s.objects.Put(ctx, StateKey(st.ID, st.Name), body); err != nil {
		return fmt.Errorf("failed to save state for job %d: %w", st.ID, err)
	}
	return nil
}

// isEmptyRecord reports whether body is a placeholder left by lazy creation
func isEmptyRecord(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || string(trimmed) == "{}"
}

func decode(body []byte) (*JobState, error) {
	var st JobState
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if st.Offsets == nil {
		st.Offsets = make(map[upstream.Partition]int, len(upstream.Partitions))
	}
	for _, p := range upstream.Partitions {
		if _, ok := st.Offsets[p]; !ok {
			st.Offsets[p] = 0
		}
		if st.Offsets[p] < 0 {
			return nil, fmt.Errorf("%w: negative %s offset %d", ErrCorruptState, p, st.Offsets[p])
		}
	}
	return &st, nil
}
