package orchestrator

// PendingState - run created, nothing invoked yet
type PendingState struct{}

func (s *PendingState) Name() string { return "pending" }
func (s *PendingState) ToListing() *ListingState {
	return &ListingState{}
}
func (s *PendingState) ToCancelled() *CancelledState {
	return &CancelledState{}
}

// ListingState - waiting on the jobs worker
type ListingState struct{}

func (s *ListingState) Name() string { return "listing" }
func (s *ListingState) ToDriving() *DrivingState {
	return &DrivingState{}
}
func (s *ListingState) ToCompleted() *CompletedState {
	return &CompletedState{}
}
func (s *ListingState) ToFailed() *FailedState {
	return &FailedState{}
}
func (s *ListingState) ToCancelled() *CancelledState {
	return &CancelledState{}
}

// DrivingState - jobs are being drained
type DrivingState struct{}

func (s *DrivingState) Name() string { return "driving" }
func (s *DrivingState) ToCompleted() *CompletedState {
	return &CompletedState{}
}
func (s *DrivingState) ToCancelled() *CancelledState {
	return &CancelledState{}
}

// Terminal states

type CompletedState struct{}

func (s *CompletedState) Name() string { return "completed" }

type FailedState struct{}

func (s *FailedState) Name() string { return "failed" }

type CancelledState struct{}

func (s *CancelledState) Name() string { return "cancelled" }
