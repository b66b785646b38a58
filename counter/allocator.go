// Package counter hands out small GPU-visible atomic counters.
//
// Counters are 4-byte slots carved out of fixed-size buffer blocks. Each
// slot moves through
//
//	Free -> PendingInit(seq) -> InUse -> PendingDiscard(seq) -> Free
//
// The seed write of a new counter is deferred until FlushInitializations for
// the batch that allocated it, and a discarded slot only becomes free again
// once Reclaim is called for the batch that discarded it, that is after the
// GPU has finished with it.
package counter

import (
	"slices"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

// SlotSize is the size of one counter in bytes.
const SlotSize = 4

// DefaultBlockSlots is the number of counters per buffer block.
const DefaultBlockSlots = 256

// Config configures an Allocator.
type Config struct {
	// BlockSlots is the number of counters carved from each buffer block.
	// Default: 256.
	BlockSlots int

	// Label prefixes the debug labels of the blocks.
	// Default: "counters".
	Label string
}

// Handle identifies one counter slot.
type Handle uint32

// Counter is the GPU location of a counter.
type Counter struct {
	Buffer gpucore.BufferID
	Offset uint64
}

// State is the lifecycle state of a slot.
type State uint8

// Slot states.
const (
	StateFree State = iota
	StatePendingInit
	StateInUse
	StatePendingDiscard
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateFree:
		return "Free"
	case StatePendingInit:
		return "PendingInit"
	case StateInUse:
		return "InUse"
	case StatePendingDiscard:
		return "PendingDiscard"
	default:
		return "Unknown"
	}
}

type initEntry struct {
	handle Handle
	value  uint32
}

// Stats is a snapshot of allocator occupancy.
type Stats struct {
	Blocks         int
	Slots          int
	Free           int
	PendingInit    int
	InUse          int
	PendingDiscard int
}

// Allocator implements the counter lifecycle. It is safe for concurrent use:
// reclaim typically runs on the goroutine receiving completion
// notifications.
type Allocator struct {
	mu      sync.Mutex
	factory gpucore.PhysicalFactory
	config  Config

	blocks []gpucore.BufferID
	states []State
	free   []Handle

	pendingInit    map[gpucore.SequenceID][]initEntry
	pendingDiscard map[gpucore.SequenceID][]Handle

	highest   gpucore.SequenceID
	lastFlush gpucore.SequenceID
	flushed   bool
	closed    bool
}

// New creates an allocator. No block is allocated until the first Allocate.
func New(factory gpucore.PhysicalFactory, config Config) *Allocator {
	if config.BlockSlots <= 0 {
		config.BlockSlots = DefaultBlockSlots
	}
	if config.Label == "" {
		config.Label = "counters"
	}
	return &Allocator{
		factory:        factory,
		config:         config,
		pendingInit:    make(map[gpucore.SequenceID][]initEntry),
		pendingDiscard: make(map[gpucore.SequenceID][]Handle),
	}
}

// observe records seq as the highest seen, rejecting sequences that go
// backwards. Caller must hold a.mu.
func (a *Allocator) observe(seq gpucore.SequenceID, op string) error {
	if seq < a.highest {
		return gpucore.Violation(gpucore.ErrStaleSequence,
			"counter %s at sequence %d after %d", op, seq, a.highest)
	}
	a.highest = seq
	return nil
}

// grow adds one block of free slots. Caller must hold a.mu.
func (a *Allocator) grow() error {
	id, err := a.factory.CreateBuffer(gpucore.BufferDesc{
		Label: a.config.Label,
		Size:  uint64(a.config.BlockSlots) * SlotSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return gpucore.ConstructionFailed(err, "counter block %d", len(a.blocks))
	}
	base := Handle(len(a.states))
	a.blocks = append(a.blocks, id)
	a.states = append(a.states, make([]State, a.config.BlockSlots)...)
	// Pop order hands out the lowest index first.
	for i := a.config.BlockSlots - 1; i >= 0; i-- {
		a.free = append(a.free, base+Handle(i))
	}
	logging.Logger().Debug("counter: block allocated",
		"block", len(a.blocks)-1, "slots", a.config.BlockSlots)
	return nil
}

// Allocate takes a free slot for the batch seq. Its initial value is
// written by FlushInitializations(seq).
func (a *Allocator) Allocate(seq gpucore.SequenceID, initial uint32) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, gpucore.Violation(gpucore.ErrReleased, "allocate on closed counter allocator")
	}
	if a.flushed && seq <= a.lastFlush {
		return 0, gpucore.Violation(gpucore.ErrStaleSequence,
			"counter allocated for sequence %d, already flushed up to %d", seq, a.lastFlush)
	}
	if err := a.observe(seq, "allocate"); err != nil {
		return 0, err
	}
	if len(a.free) == 0 {
		if err := a.grow(); err != nil {
			return 0, err
		}
	}

	h := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.states[h] = StatePendingInit
	a.pendingInit[seq] = append(a.pendingInit[seq], initEntry{handle: h, value: initial})
	return h, nil
}

// Discard retires h in the batch seq. The slot returns to the free list on
// Reclaim(seq).
func (a *Allocator) Discard(seq gpucore.SequenceID, h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if int(h) >= len(a.states) {
		return gpucore.Violation(gpucore.ErrUnknownCounter, "discard of counter %d, have %d", h, len(a.states))
	}
	switch a.states[h] {
	case StatePendingInit, StateInUse:
	default:
		return gpucore.Violation(gpucore.ErrUnknownCounter, "discard of counter %d in state %v", h, a.states[h])
	}
	if err := a.observe(seq, "discard"); err != nil {
		return err
	}
	a.states[h] = StatePendingDiscard
	a.pendingDiscard[seq] = append(a.pendingDiscard[seq], h)
	return nil
}

// Get returns the location of h. It does not check the slot state.
func (a *Allocator) Get(h Handle) (Counter, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(h) >= len(a.states) {
		return Counter{}, gpucore.Violation(gpucore.ErrUnknownCounter, "counter %d, have %d", h, len(a.states))
	}
	block := int(h) / a.config.BlockSlots
	slot := int(h) % a.config.BlockSlots
	return Counter{Buffer: a.blocks[block], Offset: uint64(slot) * SlotSize}, nil
}

// State returns the lifecycle state of h.
func (a *Allocator) State(h Handle) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(h) >= len(a.states) {
		return StateFree
	}
	return a.states[h]
}

// FlushInitializations emits one fill per counter allocated for seq and
// must be called once per batch, before it is submitted. Batches without
// allocations emit nothing.
func (a *Allocator) FlushInitializations(seq gpucore.SequenceID, enc gpucore.Encoder) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.flushed && seq <= a.lastFlush {
		return gpucore.Violation(gpucore.ErrStaleSequence,
			"counter flush for sequence %d after flush of %d", seq, a.lastFlush)
	}
	a.flushed = true
	a.lastFlush = seq

	entries, ok := a.pendingInit[seq]
	if !ok {
		return nil
	}
	delete(a.pendingInit, seq)
	for _, e := range entries {
		block := a.blocks[int(e.handle)/a.config.BlockSlots]
		offset := uint64(int(e.handle)%a.config.BlockSlots) * SlotSize
		enc.EmitFill(block, offset, SlotSize, e.value)
		if a.states[e.handle] == StatePendingInit {
			a.states[e.handle] = StateInUse
		}
	}
	return nil
}

// Reclaim returns every slot discarded in seq to the free list. Call it only
// once the clock reports seq complete. It returns the number of slots freed.
func (a *Allocator) Reclaim(seq gpucore.SequenceID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reclaim(seq)
}

func (a *Allocator) reclaim(seq gpucore.SequenceID) int {
	handles, ok := a.pendingDiscard[seq]
	if !ok {
		return 0
	}
	delete(a.pendingDiscard, seq)
	for _, h := range handles {
		a.states[h] = StateFree
		a.free = append(a.free, h)
	}
	logging.Logger().Debug("counter: reclaimed", "seq", uint64(seq), "count", len(handles))
	return len(handles)
}

// ReclaimCompleted reclaims every batch at or below completed.
func (a *Allocator) ReclaimCompleted(completed gpucore.SequenceID) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ready []gpucore.SequenceID
	for seq := range a.pendingDiscard {
		if seq <= completed {
			ready = append(ready, seq)
		}
	}
	slices.Sort(ready)
	n := 0
	for _, seq := range ready {
		n += a.reclaim(seq)
	}
	return n
}

// Stats returns a snapshot of slot states.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Stats{Blocks: len(a.blocks), Slots: len(a.states)}
	for _, st := range a.states {
		switch st {
		case StateFree:
			s.Free++
		case StatePendingInit:
			s.PendingInit++
		case StateInUse:
			s.InUse++
		case StatePendingDiscard:
			s.PendingDiscard++
		}
	}
	return s
}

// Close destroys every block. Call it only once the device is idle.
func (a *Allocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	for _, id := range a.blocks {
		a.factory.DestroyBuffer(id)
	}
	a.blocks = nil
	a.states = nil
	a.free = nil
	clear(a.pendingInit)
	clear(a.pendingDiscard)
}
