package resource

import (
	"sync"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

type pendingRelease struct {
	seq gpucore.SequenceID
	a   *Allocation
}

// ReleaseQueue defers dropping allocation references until the GPU has
// finished the batch that last used them. Renamed-out allocations go
// through it so their physical memory is not reused while in flight.
//
// ReleaseQueue is safe for concurrent use.
type ReleaseQueue struct {
	mu      sync.Mutex
	pending []pendingRelease
	last    gpucore.SequenceID
}

// Defer schedules one Release of a after seq completes. Sequence ids must be
// non-decreasing across calls.
func (q *ReleaseQueue) Defer(seq gpucore.SequenceID, a *Allocation) error {
	if a == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if seq < q.last {
		return gpucore.Violation(gpucore.ErrStaleSequence,
			"deferred release at sequence %d after %d", seq, q.last)
	}
	q.last = seq
	q.pending = append(q.pending, pendingRelease{seq: seq, a: a})
	return nil
}

// DeferFrom runs produce and schedules one Release of the allocation it
// returns after seq completes. seq is checked first, so a stale sequence
// leaves produce unrun and nothing changed. produce must not use q.
func (q *ReleaseQueue) DeferFrom(seq gpucore.SequenceID, produce func() (*Allocation, error)) (*Allocation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if seq < q.last {
		return nil, gpucore.Violation(gpucore.ErrStaleSequence,
			"deferred release at sequence %d after %d", seq, q.last)
	}
	a, err := produce()
	if err != nil || a == nil {
		return a, err
	}
	q.last = seq
	q.pending = append(q.pending, pendingRelease{seq: seq, a: a})
	return a, nil
}

// Collect releases every allocation whose sequence is at or below
// completed and returns how many references were dropped.
func (q *ReleaseQueue) Collect(completed gpucore.SequenceID) int {
	q.mu.Lock()
	n := 0
	for n < len(q.pending) && q.pending[n].seq <= completed {
		n++
	}
	ready := q.pending[:n:n]
	q.pending = q.pending[n:]
	q.mu.Unlock()

	for _, p := range ready {
		release(p.a)
	}
	return n
}

// Drain releases everything regardless of sequence. Call it only once the
// device is idle.
func (q *ReleaseQueue) Drain() int {
	q.mu.Lock()
	ready := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, p := range ready {
		release(p.a)
	}
	return len(ready)
}

// Len returns the number of pending releases.
func (q *ReleaseQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func release(a *Allocation) {
	if err := a.Release(); err != nil {
		logging.Logger().Warn("resource: deferred release", "label", a.Label(), "err", err)
	}
}
