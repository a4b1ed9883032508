package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PageSize is the number of runs requested per page
const PageSize = 10

// Partition is the run-status dimension used to paginate run history
type Partition string

const (
	PartitionSuccess Partition = "success"
	PartitionError   Partition = "error"
)

// Partitions lists every partition in drain order
var Partitions = []Partition{PartitionSuccess, PartitionError}

var ErrUnknownPartition = errors.New("upstream: unknown run partition")

// ParsePartition validates a partition name
func ParsePartition(s string) (Partition, error) {
	switch p := Partition(strings.ToLower(strings.TrimSpace(s))); p {
	case PartitionSuccess, PartitionError:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPartition, s)
	}
}

// Code returns the upstream numeric run status for the partition
func (p Partition) Code() int {
	switch p {
	case PartitionSuccess:
		return 10
	case PartitionError:
		return 20
	default:
		return 0
	}
}

func (p Partition) String() string {
	return string(p)
}

// Job is an upstream job definition
type Job struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`

	// Raw is the upstream JSON object the job was decoded from
	Raw json.RawMessage `json:"-"`
}

// jobStateName maps the upstream job state code to a status string
func jobStateName(state int) string {
	switch state {
	case 1:
		return "active"
	case 2:
		return "deleted"
	default:
		return strconv.Itoa(state)
	}
}

// RunPage is one page of run history
type RunPage struct {
	Runs       []json.RawMessage
	NextOffset int
	HasMore    bool
	Total      int
}

// NewRunPage applies the cursor policy: a page with more behind it always
// advances by a full PageSize, the last page advances by what it returned.
func NewRunPage(offset, total int, runs []json.RawMessage) *RunPage {
	page := &RunPage{
		Runs:    runs,
		HasMore: offset+PageSize < total,
		Total:   total,
	}
	if page.HasMore {
		page.NextOffset = offset + PageSize
	} else {
		page.NextOffset = offset + len(runs)
	}
	return page
}

// APIError is a non-success response from the upstream API
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsAPIError reports whether err carries an upstream APIError
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

var ErrJobNotFound = errors.New("upstream: job not found")
