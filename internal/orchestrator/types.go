package orchestrator

import (
	"time"

	"github.com/livinlefevreloca/runsync/internal/driver"
	"github.com/livinlefevreloca/runsync/internal/upstream"
)

// JobOutcome is the result of driving one job within a run
type JobOutcome struct {
	Job      upstream.Job
	Result   *driver.JobResult
	Err      error
	Duration time.Duration
}

// Failed reports whether any unit of the job failed
func (o JobOutcome) Failed() bool {
	return o.Err != nil
}

// Summary describes one orchestration run
type Summary struct {
	RunID       string
	State       string
	StartedAt   time.Time
	CompletedAt time.Time
	Jobs        []JobOutcome
}

// Failed returns the number of jobs with at least one failed unit
func (s *Summary) Failed() int {
	n := 0
	for _, j := range s.Jobs {
		if j.Failed() {
			n++
		}
	}
	return n
}

// Records returns the run records persisted across all jobs
func (s *Summary) Records() int {
	n := 0
	for _, j := range s.Jobs {
		if j.Result != nil {
			n += j.Result.Records()
		}
	}
	return n
}

// Steps returns the number of run steps taken across all jobs
func (s *Summary) Steps() int {
	n := 0
	for _, j := range s.Jobs {
		if j.Result != nil {
			n += j.Result.Steps()
		}
	}
	return n
}
