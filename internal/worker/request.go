package worker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/livinlefevreloca/runsync/internal/upstream"
)

// Type identifies the unit of work a request asks for
type Type string

const (
	TypeJobs      Type = "jobs"
	TypeRuns      Type = "runs"
	TypeModels    Type = "models"
	TypeSources   Type = "sources"
	TypeExposures Type = "exposures"
)

var (
	ErrMissingWorkerType = errors.New("worker: request has no worker_type")
	ErrUnknownWorkerType = errors.New("worker: unknown worker_type")
	ErrMissingJob        = errors.New("worker: request has no job")
)

// Request is one of JobsRequest, RunsRequest or MetadataRequest
type Request interface {
	Type() Type
	ID() string
}

// JobsRequest lists every job, or fetches one when JobID is set
type JobsRequest struct {
	RequestID string
	JobID     *int
}

func (r JobsRequest) Type() Type { return TypeJobs }
func (r JobsRequest) ID() string { return r.RequestID }

// RunsRequest runs one sync step for a job partition
type RunsRequest struct {
	RequestID string
	Job       upstream.Job
	Partition upstream.Partition
}

func (r RunsRequest) Type() Type { return TypeRuns }
func (r RunsRequest) ID() string { return r.RequestID }

// MetadataRequest pulls one metadata kind for a job
type MetadataRequest struct {
	RequestID string
	Kind      upstream.ResourceKind
	Job       upstream.Job
}

func (r MetadataRequest) Type() Type { return Type(r.Kind) }
func (r MetadataRequest) ID() string { return r.RequestID }

// envelope is the JSON form of every request
type envelope struct {
	WorkerType string   `json:"worker_type"`
	Job        *wireJob `json:"job,omitempty"`
	Partition  string   `json:"partition,omitempty"`
	RequestID  string   `json:"request_id,omitempty"`
}

type wireJob struct {
	ID     int    `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

func (w *wireJob) job() upstream.Job {
	return upstream.Job{ID: w.ID, Name: w.Name, Status: w.Status}
}

func toWire(job upstream.Job) *wireJob {
	return &wireJob{ID: job.ID, Name: job.Name, Status: job.Status}
}

// Decode parses a request payload. A runs request without a partition
// reads it from job.status.
func Decode(data []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("worker: invalid request: %w", err)
	}

	switch Type(env.WorkerType) {
	case "":
		return nil, ErrMissingWorkerType

	case TypeJobs:
		req := JobsRequest{RequestID: env.RequestID}
		if env.Job != nil {
			id := env.Job.ID
			req.JobID = &id
		}
		return req, nil

	case TypeRuns:
		if env.Job == nil {
			return nil, fmt.Errorf("%w: runs", ErrMissingJob)
		}
		raw := env.Partition
		if raw == "" {
			raw = env.Job.Status
		}
		partition, err := upstream.ParsePartition(raw)
		if err != nil {
			return nil, err
		}
		return RunsRequest{RequestID: env.RequestID, Job: env.Job.job(), Partition: partition}, nil

	case TypeModels, TypeSources, TypeExposures:
		if env.Job == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingJob, env.WorkerType)
		}
		return MetadataRequest{
			RequestID: env.RequestID,
			Kind:      upstream.ResourceKind(env.WorkerType),
			Job:       env.Job.job(),
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkerType, env.WorkerType)
	}
}

// Encode renders a request as its JSON payload
func Encode(req Request) ([]byte, error) {
	env := envelope{WorkerType: string(req.Type()), RequestID: req.ID()}

	switch r := req.(type) {
	case JobsRequest:
		if r.JobID != nil {
			env.Job = &wireJob{ID: *r.JobID}
		}
	case RunsRequest:
		env.Job = toWire(r.Job)
		env.Partition = string(r.Partition)
	case MetadataRequest:
		env.Job = toWire(r.Job)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownWorkerType, req)
	}

	return json.Marshal(env)
}
