package syncer

import (
	"context"
	"sync"
)

// keyedLock serializes steps per job. Both partitions share one state
// record, so a step on one partition excludes steps on the other.
type keyedLock struct {
	mu    sync.Mutex
	slots map[int]chan struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: make(map[int]chan struct{})}
}

// lock blocks until jobID is free or ctx is done
func (l *keyedLock) lock(ctx context.Context, jobID int) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[jobID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[jobID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
