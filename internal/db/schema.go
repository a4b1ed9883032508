package db

import "time"

// Object is a stored blob addressed by key
type Object struct {
	Key       string
	Body      []byte
	UpdatedAt time.Time
}

// SyncStep records one advancement of a job partition cursor
type SyncStep struct {
	ID           int64
	JobID        int
	JobName      string
	Partition    string
	OffsetBefore int
	OffsetAfter  int
	Records      int
	HasMore      bool
	SnapshotKey  *string // nil when the page was empty
	CreatedAt    time.Time
}

// SyncRun summarizes one orchestration run
type SyncRun struct {
	RunID         string
	StartedAt     time.Time
	CompletedAt   time.Time
	JobsTotal     int
	JobsFailed    int
	Steps         int
	Records       int
	Snapshots     int
	MetadataPulls int
	Failures      int
}
