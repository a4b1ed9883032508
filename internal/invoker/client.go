package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/livinlefevreloca/runsync/internal/upstream"
	"github.com/livinlefevreloca/runsync/internal/worker"
)

// Client sends typed worker requests through an Invoker
type Client struct {
	invoker Invoker
	task    string
}

// NewClient creates a client invoking task
func NewClient(invoker Invoker, task string) *Client {
	return &Client{invoker: invoker, task: task}
}

// Jobs lists every job, or only jobID when set
func (c *Client) Jobs(ctx context.Context, jobID *int) ([]upstream.Job, error) {
	var resp worker.JobsResponse
	if err := c.call(ctx, worker.JobsRequest{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	return resp.All(), nil
}

// Runs runs one sync step of partition for job
func (c *Client) Runs(ctx context.Context, job upstream.Job, partition upstream.Partition) (*worker.RunsResponse, error) {
	var resp worker.RunsResponse
	if err := c.call(ctx, worker.RunsRequest{Job: job, Partition: partition}, &resp); err != nil {
		return nil, err
	}
	if resp.JobState == nil {
		return nil, fmt.Errorf("runs response for job %d: %w", job.ID, ErrNoResult)
	}
	return &resp, nil
}

// Metadata pulls one metadata kind for job
func (c *Client) Metadata(ctx context.Context, kind upstream.ResourceKind, job upstream.Job) (*worker.MetadataResponse, error) {
	var resp worker.MetadataResponse
	if err := c.call(ctx, worker.MetadataRequest{Kind: kind, Job: job}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MetadataAsync queues a metadata pull without waiting for it
func (c *Client) MetadataAsync(ctx context.Context, kind upstream.ResourceKind, job upstream.Job) error {
	payload, err := worker.Encode(withRequestID(worker.MetadataRequest{Kind: kind, Job: job}, uuid.NewString()))
	if err != nil {
		return err
	}
	_, err = c.invoker.Invoke(ctx, c.task, ModeEvent, payload)
	return err
}

func (c *Client) call(ctx context.Context, req worker.Request, out any) error {
	payload, err := worker.Encode(withRequestID(req, uuid.NewString()))
	if err != nil {
		return err
	}

	res, err := c.invoker.Invoke(ctx, c.task, ModeRequestResponse, payload)
	if err != nil {
		return err
	}
	if res == nil {
		return ErrNoResult
	}
	return decodePayload(res.Payload, out)
}

// decodePayload decodes a task response. Responses encoded as a JSON
// string holding JSON are unwrapped first.
func decodePayload(payload []byte, out any) error {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || string(payload) == "null" || string(payload) == `""` || string(payload) == "{}" {
		return ErrNoResult
	}

	if payload[0] == '"' {
		var inner string
		if err := json.Unmarshal(payload, &inner); err != nil {
			return fmt.Errorf("invalid task response: %w", err)
		}
		return decodePayload([]byte(inner), out)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("invalid task response: %w", err)
	}
	return nil
}

func withRequestID(req worker.Request, id string) worker.Request {
	switch r := req.(type) {
	case worker.JobsRequest:
		r.RequestID = id
		return r
	case worker.RunsRequest:
		r.RequestID = id
		return r
	case worker.MetadataRequest:
		r.RequestID = id
		return r
	default:
		return req
	}
}

// IsNoResult reports whether err means the invocation yielded nothing
func IsNoResult(err error) bool {
	return errors.Is(err, ErrNoResult)
}
