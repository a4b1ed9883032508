package worker

import (
	"github.com/livinlefevreloca/runsync/internal/upstream"
)

// JobsResponse answers a jobs request. Exactly one field is set.
type JobsResponse struct {
	Jobs []upstream.Job `json:"jobs,omitempty"`
	Job  *upstream.Job  `json:"job,omitempty"`
}

// All returns the jobs carried by the response
func (r JobsResponse) All() []upstream.Job {
	if r.Job != nil {
		return []upstream.Job{*r.Job}
	}
	return r.Jobs
}

// MetadataResponse acknowledges a metadata pull. Key is empty when the
// upstream returned no records and nothing was written.
type MetadataResponse struct {
	WorkerType Type   `json:"worker_type"`
	Key        string `json:"key,omitempty"`
	Rows       int    `json:"rows"`
}
