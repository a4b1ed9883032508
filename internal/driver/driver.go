// Package driver drains a job's run history one remote step at a time and
// then pulls its metadata.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/livinlefevreloca/runsync/internal/invoker"
	"github.com/livinlefevreloca/runsync/internal/upstream"
	"github.com/livinlefevreloca/runsync/internal/worker"
)

// WorkerClient invokes remote worker steps
type WorkerClient interface {
	Runs(ctx context.Context, job upstream.Job, partition upstream.Partition) (*worker.RunsResponse, error)
	Metadata(ctx context.Context, kind upstream.ResourceKind, job upstream.Job) (*worker.MetadataResponse, error)
	MetadataAsync(ctx context.Context, kind upstream.ResourceKind, job upstream.Job) error
}

// DrainResult summarizes the steps taken on one partition
type DrainResult struct {
	Partition upstream.Partition
	Steps     int
	Records   int
	Snapshots int
	Offset    int
	Drained   bool
}

// JobResult summarizes one drive of a job
type JobResult struct {
	Job           upstream.Job
	Drains        []DrainResult
	MetadataPulls int
	MetadataRows  int
	Failures      int
}

// Records returns the run records persisted across all partitions
func (r *JobResult) Records() int {
	total := 0
	for _, d := range r.Drains {
		total += d.Records
	}
	return total
}

// Steps returns the number of run steps taken across all partitions
func (r *JobResult) Steps() int {
	total := 0
	for _, d := range r.Drains {
		total += d.Steps
	}
	return total
}

// Snapshots returns the number of snapshots written across all partitions
func (r *JobResult) Snapshots() int {
	total := 0
	for _, d := range r.Drains {
		total += d.Snapshots
	}
	return total
}

// Driver runs the continuation loop for jobs
type Driver struct {
	config Config
	client WorkerClient
	group  singleflight.Group
	logger *slog.Logger
}

// New creates a driver
func New(config Config, client WorkerClient, logger *slog.Logger) (*Driver, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{config: config, client: client, logger: logger}, nil
}

// Drain steps partition until the worker reports nothing more. A failed or
// empty invocation stops the loop without marking the partition drained;
// only failures are returned as errors.
func (d *Driver) Drain(ctx context.Context, job upstream.Job, partition upstream.Partition) (DrainResult, error) {
	res := DrainResult{Partition: partition}
	logger := d.logger.With("job_id", job.ID, "partition", partition)

	// The worker reads job.status as the partition on the legacy wire format
	stepJob := upstream.Job{ID: job.ID, Name: job.Name, Status: string(partition)}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if d.config.MaxStepsPerDrain > 0 && res.Steps >= d.config.MaxStepsPerDrain {
			logger.Info("step limit reached, resuming next run", "steps", res.Steps, "offset", res.Offset)
			return res, nil
		}

		resp, err := d.client.Runs(ctx, stepJob, partition)
		if err != nil {
			if invoker.IsNoResult(err) {
				logger.Info("step returned no result, stopping drain", "steps", res.Steps)
				return res, nil
			}
			logger.Error("step failed", "steps", res.Steps, "error", err)
			return res, fmt.Errorf("job %d %s step %d: %w", job.ID, partition, res.Steps+1, err)
		}

		res.Steps++
		res.Records += resp.Records
		if resp.SnapshotKey != "" {
			res.Snapshots++
		}
		res.Offset = resp.Offset(partition)

		if !resp.HasMore {
			res.Drained = true
			logger.Debug("partition drained", "steps", res.Steps, "offset", res.Offset)
			return res, nil
		}
	}
}

// DriveJob drains the success then error partitions and pulls every
// metadata kind. Each unit runs even when an earlier one failed; the
// failures are joined in the returned error. Concurrent calls for the same
// job share one execution.
func (d *Driver) DriveJob(ctx context.Context, job upstream.Job) (*JobResult, error) {
	v, err, shared := d.group.Do(strconv.Itoa(job.ID), func() (any, error) {
		return d.driveJob(ctx, job)
	})
	if shared {
		d.logger.Debug("joined in-flight drive", "job_id", job.ID)
	}
	res, _ := v.(*JobResult)
	return res, err
}

func (d *Driver) driveJob(ctx context.Context, job upstream.Job) (*JobResult, error) {
	res := &JobResult{Job: job}
	var errs []error

	for _, p := range upstream.Partitions {
		drain, err := d.Drain(ctx, job, p)
		res.Drains = append(res.Drains, drain)
		if err != nil {
			res.Failures++
			errs = append(errs, err)
		}
	}

	for _, kind := range upstream.ResourceKinds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := d.pullMetadata(ctx, job, kind, res); err != nil {
			res.Failures++
			errs = append(errs, err)
		}
	}

	d.logger.Info("job drive complete",
		"job_id", job.ID,
		"steps", res.Steps(),
		"records", res.Records(),
		"metadata_pulls", res.MetadataPulls,
		"failures", res.Failures)

	return res, errors.Join(errs...)
}

func (d *Driver) pullMetadata(ctx context.Context, job upstream.Job, kind upstream.ResourceKind, res *JobResult) error {
	if d.config.AsyncMetadata {
		if err := d.client.MetadataAsync(ctx, kind, job); err != nil {
			if invoker.IsNoResult(err) {
				return nil
			}
			return fmt.Errorf("job %d %s: %w", job.ID, kind, err)
		}
		res.MetadataPulls++
		return nil
	}

	resp, err := d.client.Metadata(ctx, kind, job)
	if err != nil {
		if invoker.IsNoResult(err) {
			return nil
		}
		d.logger.Error("metadata pull failed", "job_id", job.ID, "kind", kind, "error", err)
		return fmt.Errorf("job %d %s: %w", job.ID, kind, err)
	}
	res.MetadataPulls++
	res.MetadataRows += resp.Rows
	return nil
}
