package resource

import (
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

// Pool capacity limits.
const (
	DefaultPoolCapacity = 3
	MaxPoolCapacity     = 16
)

// PoolConfig configures a RenamingPool.
type PoolConfig struct {
	// Capacity is the number of allocations in the ring.
	// Default: 3. Clamped to [1, MaxPoolCapacity].
	Capacity int
}

// RenamingPool is a small ring of pre-built allocations for one resource.
// Every frame the ring restarts at its first slot, so up to Capacity
// discards per frame get distinct allocations; further discards in the same
// frame wrap around.
//
// A RenamingPool assumes a single writer, the goroutine recording
// discards for its resource.
type RenamingPool struct {
	res    *Logical
	slots  []*Allocation
	cursor int
	frame  uint64
	closed bool
}

// NewRenamingPool returns an empty ring of the configured capacity for res.
// Slots are allocated on first use.
func NewRenamingPool(res *Logical, cfg PoolConfig) *RenamingPool {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	capacity = min(capacity, MaxPoolCapacity)
	return &RenamingPool{res: res, slots: make([]*Allocation, capacity)}
}

// Capacity returns the number of slots.
func (p *RenamingPool) Capacity() int { return len(p.slots) }

// Allocated returns how many slots hold an allocation.
func (p *RenamingPool) Allocated() int {
	n := 0
	for _, a := range p.slots {
		if a != nil {
			n++
		}
	}
	return n
}

// GetNext returns the next allocation of the ring for frame, allocating it
// when the slot is still empty. The cursor resets when frame is newer than
// the last frame seen. Past Capacity calls within one frame the ring wraps
// and may return an allocation the GPU is still using.
//
// The pool keeps its reference to the returned allocation.
func (p *RenamingPool) GetNext(frame uint64) (*Allocation, error) {
	if p.closed {
		return nil, gpucore.Violation(gpucore.ErrReleased, "GetNext on closed renaming pool")
	}
	switch {
	case frame > p.frame:
		p.frame = frame
		p.cursor = 0
	case frame < p.frame:
		return nil, gpucore.Violation(gpucore.ErrStaleSequence,
			"frame %d after frame %d", frame, p.frame)
	}

	i := p.cursor % len(p.slots)
	if p.slots[i] == nil {
		a, err := p.res.Allocate()
		if err != nil {
			return nil, err
		}
		p.slots[i] = a
		logging.Logger().Debug("resource: pool slot allocated", "slot", i, "label", a.Label())
	}
	p.cursor++
	return p.slots[i], nil
}

// Discard renames the resource to the next allocation of the ring and
// returns the previous current allocation. The caller owns a reference to
// the returned allocation.
func (p *RenamingPool) Discard(frame uint64) (*Allocation, error) {
	next, err := p.GetNext(frame)
	if err != nil {
		return nil, err
	}
	return p.res.Rename(next)
}

// Detach empties and closes the pool, handing its references to the
// caller.
func (p *RenamingPool) Detach() []*Allocation {
	if p.closed {
		return nil
	}
	p.closed = true
	var out []*Allocation
	for _, a := range p.slots {
		if a != nil {
			out = append(out, a)
		}
	}
	p.slots = nil
	return out
}

// Resource returns the resource the pool renames.
func (p *RenamingPool) Resource() *Logical { return p.res }

// Close drops the pool's references. Allocations still current or deferred
// elsewhere stay alive until their last reference goes away.
func (p *RenamingPool) Close() {
	for _, a := range p.Detach() {
		if err := a.Release(); err != nil {
			logging.Logger().Warn("resource: pool release", "err", err)
		}
	}
}
