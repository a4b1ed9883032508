// Package worker executes one unit of sync work per request: a job
// listing, one run sync step, or one metadata pull.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/livinlefevreloca/runsync/internal/flatten"
	"github.com/livinlefevreloca/runsync/internal/objectstore"
	"github.com/livinlefevreloca/runsync/internal/state"
	"github.com/livinlefevreloca/runsync/internal/syncer"
	"github.com/livinlefevreloca/runsync/internal/upstream"
)

// JobsAPI lists upstream job definitions
type JobsAPI interface {
	ListJobs(ctx context.Context) ([]upstream.Job, error)
	GetJob(ctx context.Context, id int) (upstream.Job, error)
}

// MetadataAPI pulls metadata records for a job
type MetadataAPI interface {
	GetMetadata(ctx context.Context, kind upstream.ResourceKind, jobID int) ([]json.RawMessage, error)
}

// Stepper runs one sync step
type Stepper interface {
	StepResult(ctx context.Context, job upstream.Job, partition upstream.Partition) (*syncer.Result, error)
}

// RunsResponse answers a runs request with the saved job state. Records
// and SnapshotKey describe the page that was just synced.
type RunsResponse struct {
	*state.JobState
	Records     int    `json:"records"`
	SnapshotKey string `json:"snapshotKey,omitempty"`
}

// Handler dispatches requests to the upstream clients and sync engine
type Handler struct {
	jobs     JobsAPI
	engine   Stepper
	metadata MetadataAPI
	objects  objectstore.Store
	logger   *slog.Logger
}

// NewHandler creates a worker handler. objects receives job definitions
// and metadata CSVs.
func NewHandler(jobs JobsAPI, engine Stepper, metadata MetadataAPI, objects objectstore.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		jobs:     jobs,
		engine:   engine,
		metadata: metadata,
		objects:  objects,
		logger:   logger,
	}
}

// Handle executes req and returns its response value
func (h *Handler) Handle(ctx context.Context, req Request) (any, error) {
	logger := h.logger.With("worker_type", req.Type(), "request_id", req.ID())

	switch r := req.(type) {
	case JobsRequest:
		return h.handleJobs(ctx, logger, r)
	case RunsRequest:
		return h.handleRuns(ctx, r)
	case MetadataRequest:
		return h.handleMetadata(ctx, logger, r)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownWorkerType, req)
	}
}

// HandlePayload decodes a JSON request, executes it and encodes the response
func (h *Handler) HandlePayload(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	resp, err := h.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s response: %w", req.Type(), err)
	}
	return out, nil
}

// HandleLambda is the AWS Lambda entry point for the worker function
func (h *Handler) HandleLambda(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return h.HandlePayload(ctx, payload)
}

func (h *Handler) handleJobs(ctx context.Context, logger *slog.Logger, r JobsRequest) (*JobsResponse, error) {
	if r.JobID != nil {
		job, err := h.jobs.GetJob(ctx, *r.JobID)
		if err != nil {
			return nil, err
		}
		return &JobsResponse{Job: &job}, nil
	}

	jobs, err := h.jobs.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	if len(jobs) > 0 {
		if err := h.saveDefinitions(ctx, jobs); err != nil {
			return nil, err
		}
	}
	logger.Info("listed jobs", "count", len(jobs))
	return &JobsResponse{Jobs: jobs}, nil
}

// saveDefinitions writes the upstream job objects as an indented JSON array
func (h *Handler) saveDefinitions(ctx context.Context, jobs []upstream.Job) error {
	defs := make([]json.RawMessage, 0, len(jobs))
	for _, job := range jobs {
		raw := job.Raw
		if len(raw) == 0 {
			var err error
			if raw, err = json.Marshal(job); err != nil {
				return fmt.Errorf("failed to encode job %d: %w", job.ID, err)
			}
		}
		defs = append(defs, raw)
	}

	body, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode job definitions: %w", err)
	}
	if err := h.objects.Put(ctx, state.JobDefinitionsKey, body); err != nil {
		return fmt.Errorf("failed to save job definitions: %w", err)
	}
	return nil
}

func (h *Handler) handleRuns(ctx context.Context, r RunsRequest) (*RunsResponse, error) {
	res, err := h.engine.StepResult(ctx, r.Job, r.Partition)
	if err != nil {
		return nil, err
	}
	return &RunsResponse{
		JobState:    res.State,
		Records:     res.Records,
		SnapshotKey: res.SnapshotKey,
	}, nil
}

func (h *Handler) handleMetadata(ctx context.Context, logger *slog.Logger, r MetadataRequest) (*MetadataResponse, error) {
	resp := &MetadataResponse{WorkerType: r.Type()}

	records, err := h.metadata.GetMetadata(ctx, r.Kind, r.Job.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		logger.Info("metadata api returned no records", "job_id", r.Job.ID, "job_name", r.Job.Name)
		return resp, nil
	}

	body, err := flatten.CSV(records)
	if err != nil {
		return nil, fmt.Errorf("failed to flatten %s for job %d: %w", r.Kind, r.Job.ID, err)
	}

	key := state.MetadataKey(r.Job, r.Kind)
	if err := h.objects.Put(ctx, key, body); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", key, err)
	}
	logger.Info("metadata written", "job_id", r.Job.ID, "key", key, "rows", len(records))

	resp.Key = key
	resp.Rows = len(records)
	return resp, nil
}
