// Package stats accumulates per-run counters sent by the orchestrator and
// writes each completed run to the database.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/livinlefevreloca/runsync/internal/inbox"
)

// Collector receives stats messages over an inbox and persists finished runs
type Collector struct {
	db     DatabaseWriter
	inbox  *inbox.Inbox[Message]
	config Config
	logger *slog.Logger

	// Mutex protects all mutable fields below
	mu sync.Mutex

	// Runs still receiving job results, keyed by run ID
	open map[string]*RunAccumulator

	// Completed runs not yet written
	pending []*RunAccumulator

	written int

	flushTicker *time.Ticker

	// Shutdown coordination
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a stats collector
func NewCollector(config Config, db DatabaseWriter, logger *slog.Logger) (*Collector, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid stats config: %w", err)
	}

	return &Collector{
		db:     db,
		inbox:  inbox.New[Message](config.InboxBufferSize, config.InboxSendTimeout, logger),
		config: config,
		logger: logger,
		open:   make(map[string]*RunAccumulator),
		done:   make(chan struct{}),
	}, nil
}

// Start begins the collection loop
func (c *Collector) Start() {
	c.logger.Info("starting stats collector")

	c.mu.Lock()
	c.flushTicker = time.NewTicker(c.config.FlushInterval)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()
}

// Stop drains the inbox, closes any open runs and writes everything pending
func (c *Collector) Stop() error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.logger.Info("stopping stats collector")

		close(c.done)

		c.mu.Lock()
		if c.flushTicker != nil {
			c.flushTicker.Stop()
		}
		c.mu.Unlock()

		c.inbox.Close()
		c.wg.Wait()

		for {
			msg, ok := c.inbox.TryReceive()
			if !ok {
				break
			}
			c.processMessage(msg)
		}
		c.closeOpenRuns(time.Now())

		if err := c.flush(); err != nil {
			c.logger.Error("final flush failed", "error", err)
			stopErr = err
			return
		}

		c.logger.Info("stats collector stopped")
	})
	return stopErr
}

// Send delivers a stats message to the collector (non-blocking with timeout)
func (c *Collector) Send(msg Message) bool {
	return c.inbox.Send(msg)
}

// Pending returns the number of completed runs not yet written
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Written returns the number of runs written so far
func (c *Collector) Written() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}

// InboxStats returns the collector inbox statistics
func (c *Collector) InboxStats() inbox.Stats {
	return c.inbox.GetStats()
}

// run is the main collection loop
func (c *Collector) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			c.logger.Debug("shutdown signal received")
			return

		case <-c.flushTicker.C:
			if err := c.flush(); err != nil {
				c.logger.Error("flush failed", "error", err)
			}

		case msg := <-c.inbox.C():
			c.inbox.Ack()
			c.inbox.UpdateDepthStats()
			if c.processMessage(msg) {
				if err := c.flush(); err != nil {
					c.logger.Error("run flush failed", "run_id", msg.RunID, "error", err)
				}
			}
		}
	}
}

// processMessage updates the matching run; it reports whether a run completed
func (c *Collector) processMessage(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Kind {
	case KindRunStarted:
		data, ok := msg.Data.(*RunStartedData)
		if !ok {
			c.logger.Error("invalid run started data type", "run_id", msg.RunID)
			return false
		}
		c.open[msg.RunID] = &RunAccumulator{
			RunID:     msg.RunID,
			StartedAt: msg.Timestamp,
			JobsTotal: data.JobsTotal,
		}

	case KindJobCompleted:
		data, ok := msg.Data.(*JobData)
		if !ok {
			c.logger.Error("invalid job data type", "run_id", msg.RunID)
			return false
		}
		acc, ok := c.open[msg.RunID]
		if !ok {
			c.logger.Warn("job result for unknown run", "run_id", msg.RunID, "job_id", data.JobID)
			return false
		}
		acc.Add(data)

	case KindRunCompleted:
		acc, ok := c.open[msg.RunID]
		if !ok {
			c.logger.Warn("completion for unknown run", "run_id", msg.RunID)
			return false
		}
		delete(c.open, msg.RunID)
		acc.CompletedAt = msg.Timestamp
		c.pending = append(c.pending, acc)
		return true

	default:
		c.logger.Error("unknown stats message kind", "kind", msg.Kind)
	}
	return false
}

// closeOpenRuns moves runs that never reported completion to pending
func (c *Collector) closeOpenRuns(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, acc := range c.open {
		c.logger.Warn("closing incomplete run", "run_id", id, "jobs_seen", acc.JobsSeen, "jobs_total", acc.JobsTotal)
		acc.CompletedAt = now
		c.pending = append(c.pending, acc)
		delete(c.open, id)
	}
}

// flush writes pending runs in order; runs that fail stay pending
func (c *Collector) flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return nil
	}

	c.logger.Debug("flushing run stats", "runs", len(c.pending))

	for len(c.pending) > 0 {
		run := c.pending[0]
		ctx, cancel := context.WithTimeout(context.Background(), c.config.WriteTimeout)
		err := c.db.WriteRun(ctx, run)
		cancel()
		if err != nil {
			return fmt.Errorf("write run %s failed: %w", run.RunID, err)
		}
		c.pending = c.pending[1:]
		c.written++

		c.logger.Info("run stats written",
			"run_id", run.RunID,
			"jobs_total", run.JobsTotal,
			"jobs_failed", run.JobsFailed,
			"records", run.Records)
	}
	return nil
}
