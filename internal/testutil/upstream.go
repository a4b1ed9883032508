package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/livinlefevreloca/runsync/internal/upstream"
)

// FakeUpstream is an in-memory upstream API. Runs are numbered per
// (job, partition) starting at 1 so snapshots can be checked for gaps.
type FakeUpstream struct {
	mu       sync.Mutex
	jobs     []upstream.Job
	runs     map[runsKey]int
	metadata map[metadataKey][]json.RawMessage
	failures map[string]error
	calls    []string
}

type runsKey struct {
	jobID     int
	partition upstream.Partition
}

type metadataKey struct {
	jobID int
	kind  upstream.ResourceKind
}

func NewFakeUpstream() *FakeUpstream {
	return &FakeUpstream{
		runs:     make(map[runsKey]int),
		metadata: make(map[metadataKey][]json.RawMessage),
		failures: make(map[string]error),
	}
}

// AddJob registers a job in the listing
func (f *FakeUpstream) AddJob(job upstream.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.Raw == nil {
		job.Raw, _ = json.Marshal(map[string]any{"id": job.ID, "name": job.Name, "state": 1})
	}
	f.jobs = append(f.jobs, job)
}

// SetRuns sets how many runs exist for a job partition
func (f *FakeUpstream) SetRuns(jobID int, partition upstream.Partition, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[runsKey{jobID, partition}] = total
}

// SetMetadata sets the records returned for a job's metadata kind
func (f *FakeUpstream) SetMetadata(jobID int, kind upstream.ResourceKind, records ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raws := make([]json.RawMessage, len(records))
	for i, r := range records {
		raws[i] = json.RawMessage(r)
	}
	f.metadata[metadataKey{jobID, kind}] = raws
}

// FailOn makes calls matching op fail with err until cleared with a nil err.
// op is "list_jobs", "get_job", "runs:<partition>" or "metadata:<kind>".
func (f *FakeUpstream) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls returns the operations served so far
func (f *FakeUpstream) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeUpstream) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.failures[op]
}

func (f *FakeUpstream) ListJobs(_ context.Context) ([]upstream.Job, error) {
	if err := f.record("list_jobs"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upstream.Job{}, f.jobs...), nil
}

func (f *FakeUpstream) GetJob(_ context.Context, id int) (upstream.Job, error) {
	if err := f.record("get_job"); err != nil {
		return upstream.Job{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return upstream.Job{}, fmt.Errorf("job %d: %w", id, upstream.ErrJobNotFound)
}

func (f *FakeUpstream) GetRunsPage(_ context.Context, jobID, offset int, partition upstream.Partition) (*upstream.RunPage, error) {
	if err := f.record("runs:" + string(partition)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	total := f.runs[runsKey{jobID, partition}]
	runs := make([]json.RawMessage, 0, upstream.PageSize)
	for i := offset; i < total && i < offset+upstream.PageSize; i++ {
		runs = append(runs, json.RawMessage(fmt.Sprintf(`{"id":%d,"job_definition_id":%d,"status":%d}`, i+1, jobID, partition.Code())))
	}
	return upstream.NewRunPage(offset, total, runs), nil
}

func (f *FakeUpstream) GetMetadata(_ context.Context, kind upstream.ResourceKind, jobID int) ([]json.RawMessage, error) {
	if err := f.record("metadata:" + string(kind)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]json.RawMessage{}, f.metadata[metadataKey{jobID, kind}]...), nil
}
