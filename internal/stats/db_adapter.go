package stats

import (
	"context"

	"github.com/livinlefevreloca/runsync/internal/db"
)

// DatabaseWriter persists completed runs
type DatabaseWriter interface {
	WriteRun(ctx context.Context, run *RunAccumulator) error
}

// DBAdapter adapts db.DB to implement DatabaseWriter
type DBAdapter struct {
	db interface {
		CreateSyncRun(ctx context.Context, run *db.SyncRun) error
	}
}

// NewDBAdapter creates a new database adapter
func NewDBAdapter(database *db.DB) *DBAdapter {
	return &DBAdapter{db: database}
}

// WriteRun implements DatabaseWriter for db.DB.
// A run that was already written counts as success.
func (a *DBAdapter) WriteRun(ctx context.Context, run *RunAccumulator) error {
	err := a.db.CreateSyncRun(ctx, &db.SyncRun{
		RunID:         run.RunID,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
		JobsTotal:     run.JobsTotal,
		JobsFailed:    run.JobsFailed,
		Steps:         run.Steps,
		Records:       run.Records,
		Snapshots:     run.Snapshots,
		MetadataPulls: run.MetadataPulls,
		Failures:      run.Failures,
	})
	if db.IsDuplicate(err) {
		return nil
	}
	return err
}
