package syncer

import (
	"context"

	"github.com/livinlefevreloca/runsync/internal/db"
)

// DBLedger records steps in the sync_steps table
type DBLedger struct {
	db *db.DB
}

// NewDBLedger creates a step recorder backed by database
func NewDBLedger(database *db.DB) *DBLedger {
	return &DBLedger{db: database}
}

// RecordStep implements StepRecorder
func (l *DBLedger) RecordStep(ctx context.Context, rec StepRecord) error {
	step := &db.SyncStep{
		JobID:        rec.JobID,
		JobName:      rec.JobName,
		Partition:    string(rec.Partition),
		OffsetBefore: rec.OffsetBefore,
		OffsetAfter:  rec.OffsetAfter,
		Records:      rec.Records,
		HasMore:      rec.HasMore,
	}
	if rec.SnapshotKey != "" {
		key := rec.SnapshotKey
		step.SnapshotKey = &key
	}
	return l.db.CreateSyncStep(ctx, step)
}
