package syncer

import "sync"

// Phase is the sync progress of one (job, partition) pair
type Phase interface {
	Name() string
}

// PendingPhase - nothing synced yet
type PendingPhase struct{}

func (p *PendingPhase) Name() string { return "pending" }
func (p *PendingPhase) ToInProgress() *InProgressPhase {
	return &InProgressPhase{}
}
func (p *PendingPhase) ToDrained() *DrainedPhase {
	return &DrainedPhase{}
}

// InProgressPhase - the last fetch reported more runs behind the cursor
type InProgressPhase struct{}

func (p *InProgressPhase) Name() string { return "in_progress" }
func (p *InProgressPhase) ToInProgress() *InProgressPhase {
	return p
}
func (p *InProgressPhase) ToDrained() *DrainedPhase {
	return &DrainedPhase{}
}

// DrainedPhase - the cursor caught up with upstream. New runs move the
// partition back to in progress.
type DrainedPhase struct{}

func (p *DrainedPhase) Name() string { return "drained" }
func (p *DrainedPhase) ToInProgress() *InProgressPhase {
	return &InProgressPhase{}
}
func (p *DrainedPhase) ToDrained() *DrainedPhase {
	return p
}

// advance moves a phase forward given the hasMore result of a fetch
func advance(from Phase, hasMore bool) Phase {
	switch p := from.(type) {
	case *PendingPhase:
		if hasMore {
			return p.ToInProgress()
		}
		return p.ToDrained()
	case *InProgressPhase:
		if hasMore {
			return p.ToInProgress()
		}
		return p.ToDrained()
	case *DrainedPhase:
		if hasMore {
			return p.ToInProgress()
		}
		return p.ToDrained()
	default:
		if hasMore {
			return &InProgressPhase{}
		}
		return &DrainedPhase{}
	}
}

// PhaseRecorder tracks phase transitions for testing
type PhaseRecorder struct {
	mu   sync.Mutex
	path []string
}

func NewPhaseRecorder() *PhaseRecorder {
	return &PhaseRecorder{path: make([]string, 0)}
}

func (r *PhaseRecorder) Record(phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = append(r.path, phase.Name())
}

func (r *PhaseRecorder) Path() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.path...)
}
