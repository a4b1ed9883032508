package db

import (
	"context"
	"database/sql"
)

// =============================================================================
// Sync Run Operations
// =============================================================================

// CreateSyncRun stores the summary of one orchestration run
func (db *DB) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	query := `
		INSERT INTO sync_runs (
			run_id, started_at, completed_at, jobs_total, jobs_failed,
			steps, records, snapshots, metadata_pulls, failures
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		run.RunID,
		run.StartedAt,
		run.CompletedAt,
		run.JobsTotal,
		run.JobsFailed,
		run.Steps,
		run.Records,
		run.Snapshots,
		run.MetadataPulls,
		run.Failures,
	)

	return err
}

// GetSyncRun retrieves a run summary by its ID
func (db *DB) GetSyncRun(ctx context.Context, runID string) (*SyncRun, error) {
	run := &SyncRun{}

	query := `
		SELECT run_id, started_at, completed_at, jobs_total, jobs_failed,
		       steps, records, snapshots, metadata_pulls, failures
		FROM sync_runs
		WHERE run_id = ?
	`

	err := db.QueryRowContext(ctx, query, runID).Scan(
		&run.RunID,
		&run.StartedAt,
		&run.CompletedAt,
		&run.JobsTotal,
		&run.JobsFailed,
		&run.Steps,
		&run.Records,
		&run.Snapshots,
		&run.MetadataPulls,
		&run.Failures,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}
