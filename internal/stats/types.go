package stats

import "time"

// Kind identifies what a stats message reports
type Kind string

const (
	KindRunStarted   Kind = "run_started"
	KindJobCompleted Kind = "job_completed"
	KindRunCompleted Kind = "run_completed"
)

// Message is sent to the collector by the orchestrator
type Message struct {
	Kind      Kind
	RunID     string
	Timestamp time.Time
	Data      any
}

// RunStartedData opens a run
type RunStartedData struct {
	JobsTotal int
}

// JobData reports the outcome of driving one job
type JobData struct {
	JobID         int
	Steps         int
	Records       int
	Snapshots     int
	MetadataPulls int
	Failures      int
	Failed        bool
}

// RunAccumulator holds the counters of one orchestration run
type RunAccumulator struct {
	RunID         string
	StartedAt     time.Time
	CompletedAt   time.Time
	JobsTotal     int
	JobsSeen      int
	JobsFailed    int
	Steps         int
	Records       int
	Snapshots     int
	MetadataPulls int
	Failures      int
}

// Add folds one job's outcome into the run
func (a *RunAccumulator) Add(data *JobData) {
	a.JobsSeen++
	a.Steps += data.Steps
	a.Records += data.Records
	a.Snapshots += data.Snapshots
	a.MetadataPulls += data.MetadataPulls
	a.Failures += data.Failures
	if data.Failed {
		a.JobsFailed++
	}
}
