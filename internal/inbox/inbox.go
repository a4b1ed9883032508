// Package inbox provides a typed, buffered message channel with a send timeout.
package inbox

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Inbox is a buffered channel of T whose senders give up after a timeout
type Inbox[T any] struct {
	ch      chan T
	timeout time.Duration
	logger  *slog.Logger

	sent     atomic.Int64
	received atomic.Int64
	timeouts atomic.Int64

	depthMu  sync.Mutex
	depth    int
	maxDepth int

	closeOnce sync.Once
	closed    chan struct{}
}

// Stats tracks inbox usage
type Stats struct {
	TotalSent     int64
	TotalReceived int64
	TimeoutCount  int64
	CurrentDepth  int
	MaxDepthSeen  int
}

// New creates an inbox with the given buffer size and send timeout
func New[T any](bufferSize int, timeout time.Duration, logger *slog.Logger) *Inbox[T] {
	return &Inbox[T]{
		ch:      make(chan T, bufferSize),
		timeout: timeout,
		logger:  logger,
		closed:  make(chan struct{}),
	}
}

// Send enqueues msg, waiting at most the configured timeout.
// Returns false on timeout or when the inbox is closed.
func (ib *Inbox[T]) Send(msg T) bool {
	select {
	case <-ib.closed:
		return false
	default:
	}

	timer := time.NewTimer(ib.timeout)
	defer timer.Stop()

	select {
	case ib.ch <- msg:
		ib.sent.Add(1)
		return true
	case <-ib.closed:
		return false
	case <-timer.C:
		ib.timeouts.Add(1)
		ib.logger.Warn("inbox send timeout",
			"timeout", ib.timeout,
			"current_depth", len(ib.ch))
		return false
	}
}

// TryReceive returns the next message without blocking
func (ib *Inbox[T]) TryReceive() (T, bool) {
	select {
	case msg := <-ib.ch:
		ib.received.Add(1)
		return msg, true
	default:
		var zero T
		return zero, false
	}
}

// Receive blocks until a message arrives or the inbox is closed and empty
func (ib *Inbox[T]) Receive() (T, bool) {
	select {
	case msg := <-ib.ch:
		ib.received.Add(1)
		return msg, true
	case <-ib.closed:
		return ib.TryReceive()
	}
}

// C exposes the receive side for use in select statements
func (ib *Inbox[T]) C() <-chan T {
	return ib.ch
}

// Ack counts a message taken directly from C
func (ib *Inbox[T]) Ack() {
	ib.received.Add(1)
}

// UpdateDepthStats samples the current depth
func (ib *Inbox[T]) UpdateDepthStats() {
	depth := len(ib.ch)

	ib.depthMu.Lock()
	defer ib.depthMu.Unlock()
	ib.depth = depth
	if depth > ib.maxDepth {
		ib.maxDepth = depth
	}
}

// GetStats returns a snapshot of the inbox statistics
func (ib *Inbox[T]) GetStats() Stats {
	ib.depthMu.Lock()
	defer ib.depthMu.Unlock()

	return Stats{
		TotalSent:     ib.sent.Load(),
		TotalReceived: ib.received.Load(),
		TimeoutCount:  ib.timeouts.Load(),
		CurrentDepth:  ib.depth,
		MaxDepthSeen:  ib.maxDepth,
	}
}

// Len returns the number of buffered messages
func (ib *Inbox[T]) Len() int {
	return len(ib.ch)
}

// Close stops further sends. Buffered messages remain receivable.
func (ib *Inbox[T]) Close() {
	ib.closeOnce.Do(func() {
		close(ib.closed)
	})
}
