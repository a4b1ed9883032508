package state

import (
	"strconv"
	"strings"
	"time"

	"github.com/livinlefevreloca/runsync/internal/upstream"
)

const (
	stateFile = "job_state.json"

	// JobDefinitionsKey holds the most recent full job listing
	JobDefinitionsKey = "jobs_definitions/jobs_definitions.json"

	snapshotTimeLayout = "2006-01-02_15:04:05"
)

var nameReplacer = strings.NewReplacer(" ", "_", ",", "")

// NormalizeName maps a job name to its key form: spaces become
// underscores, commas are dropped and the result is lower-cased.
func NormalizeName(name string) string {
	return strings.ToLower(nameReplacer.Replace(name))
}

// JobPrefix returns the key prefix under which all of a job's objects live
func JobPrefix(id int, name string) string {
	return "job_" + strconv.Itoa(id) + "_" + NormalizeName(name)
}

// StateKey returns the key of a job's state record
func StateKey(id int, name string) string {
	return JobPrefix(id, name) + "/" + stateFile
}

// SnapshotKey returns the key of a run snapshot written at t.
// The file name keeps the job name's case.
func SnapshotKey(job upstream.Job, t time.Time) string {
	return JobPrefix(job.ID, job.Name) + "/job_" + nameReplacer.Replace(job.Name) + "_" + t.Format(snapshotTimeLayout) + ".json"
}

// MetadataKey returns the key of a job's flattened metadata of kind
func MetadataKey(job upstream.Job, kind upstream.ResourceKind) string {
	return JobPrefix(job.ID, job.Name) + "/" + string(kind) + ".csv"
}
