package gpures

import (
	"context"
	"sync"
	"time"

	"github.com/gogpu/gpures/gpucore"
)

// Clock is a software gpucore.SequenceClock. Completion is pushed with
// Signal, typically from the goroutine receiving driver notifications, and
// WaitFor blocks callers until a sequence completes.
//
// Clock is safe for concurrent use.
type Clock struct {
	mu        sync.Mutex
	issued    gpucore.SequenceID
	completed gpucore.SequenceID
	changed   chan struct{}
}

// NewClock returns a clock with nothing issued.
func NewClock() *Clock {
	return &Clock{changed: make(chan struct{})}
}

// Next issues the sequence id of the next batch.
func (c *Clock) Next() gpucore.SequenceID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	return c.issued
}

// Completed returns the highest completed sequence id.
func (c *Clock) Completed() gpucore.SequenceID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

// Signal marks every batch up to seq complete and wakes waiters. Signals
// at or below the current completion are ignored; completing a sequence
// that was never issued is a contract violation.
func (c *Clock) Signal(seq gpucore.SequenceID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq > c.issued {
		return gpucore.Violation(gpucore.ErrStaleSequence,
			"signal of sequence %d, only %d issued", seq, c.issued)
	}
	if seq <= c.completed {
		return nil
	}
	c.completed = seq
	close(c.changed)
	c.changed = make(chan struct{})
	return nil
}

// WaitFor blocks until seq has completed or ctx ends.
func (c *Clock) WaitFor(ctx context.Context, seq gpucore.SequenceID) error {
	for {
		c.mu.Lock()
		if c.completed >= seq {
			c.mu.Unlock()
			return nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pollWaiter adapts a clock without completion notifications by polling.
type pollWaiter struct {
	clock    gpucore.SequenceClock
	interval time.Duration
}

func (w pollWaiter) Completed() gpucore.SequenceID { return w.clock.Completed() }

func (w pollWaiter) WaitFor(ctx context.Context, seq gpucore.SequenceID) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for w.clock.Completed() < seq {
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

var _ gpucore.SequenceClock = (*Clock)(nil)
