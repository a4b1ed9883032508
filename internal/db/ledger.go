package db

import (
	"context"
	"time"
)

// =============================================================================
// Sync Step Ledger
// =============================================================================

// CreateSyncStep appends a step to the ledger
func (db *DB) CreateSyncStep(ctx context.Context, step *SyncStep) error {
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sync_steps (
			job_id, job_name, partition, offset_before, offset_after,
			records, has_more, snapshot_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := db.ExecContext(ctx, query,
		step.JobID,
		step.JobName,
		step.Partition,
		step.OffsetBefore,
		step.OffsetAfter,
		step.Records,
		step.HasMore,
		step.SnapshotKey,
		step.CreatedAt,
	)
	if err != nil {
		return err
	}

	step.ID, err = res.LastInsertId()
	return err
}

// GetSyncSteps returns the ledger for a job in insertion order.
// An empty partition returns steps of every partition.
func (db *DB) GetSyncSteps(ctx context.Context, jobID int, partition string) ([]SyncStep, error) {
	query := `
		SELECT id, job_id, job_name, partition, offset_before, offset_after,
		       records, has_more, snapshot_key, created_at
		FROM sync_steps
		WHERE job_id = ? AND (? = '' OR partition = ?)
		ORDER BY id
	`

	rows, err := db.QueryContext(ctx, query, jobID, partition, partition)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []SyncStep{}
	for rows.Next() {
		var s SyncStep
		err := rows.Scan(
			&s.ID,
			&s.JobID,
			&s.JobName,
			&s.Partition,
			&s.OffsetBefore,
			&s.OffsetAfter,
			&s.Records,
			&s.HasMore,
			&s.SnapshotKey,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}

	return steps, rows.Err()
}
