package counter

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/fakegpu"
)

func TestLifecycle(t *testing.T) {
	f := fakegpu.NewFactory()
	a := New(f, Config{})
	enc := &fakegpu.Encoder{}

	h, err := a.Allocate(10, 0)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got := a.State(h); got != StatePendingInit {
		t.Errorf("State() = %v, want PendingInit", got)
	}
	if err := a.FlushInitializations(10, enc); err != nil {
		t.Fatalf("FlushInitializations() error = %v", err)
	}
	if got := a.State(h); got != StateInUse {
		t.Errorf("State() = %v, want InUse", got)
	}
	if err := a.Discard(10, h); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}

	if n := a.Reclaim(9); n != 0 {
		t.Errorf("Reclaim(9) = %d, want 0", n)
	}
	if got := a.State(h); got != StatePendingDiscard {
		t.Fatalf("State() after Reclaim(9) = %v, want PendingDiscard", got)
	}
	if n := a.Reclaim(10); n != 1 {
		t.Errorf("Reclaim(10) = %d, want 1", n)
	}
	if got := a.State(h); got != StateFree {
		t.Errorf("State() = %v, want Free", got)
	}

	again, err := a.Allocate(11, 0)
	if err != nil {
		t.Fatal(err)
	}
	if again != h {
		t.Errorf("Allocate() after reclaim = %d, want reused %d", again, h)
	}
}

func TestFlushEmitsSeeds(t *testing.T) {
	f := fakegpu.NewFactory()
	a := New(f, Config{BlockSlots: 8})
	enc := &fakegpu.Encoder{}

	h0, _ := a.Allocate(3, 0)
	h1, _ := a.Allocate(3, 42)
	if err := a.FlushInitializations(3, enc); err != nil {
		t.Fatal(err)
	}
	if len(enc.Fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(enc.Fills))
	}

	for i, h := range []Handle{h0, h1} {
		c, err := a.Get(h)
		if err != nil {
			t.Fatal(err)
		}
		fill := enc.Fills[i]
		if fill.Buffer != c.Buffer || fill.Offset != c.Offset || fill.Size != SlotSize {
			t.Errorf("fill %d = %+v, want buffer %d offset %d", i, fill, c.Buffer, c.Offset)
		}
	}
	if enc.Fills[1].Value != 42 {
		t.Errorf("seed = %d, want 42", enc.Fills[1].Value)
	}

	// A batch without allocations emits nothing.
	if err := a.FlushInitializations(4, enc); err != nil {
		t.Fatal(err)
	}
	if len(enc.Fills) != 2 {
		t.Errorf("fills after empty flush = %d, want 2", len(enc.Fills))
	}
}

func TestBlockGrowth(t *testing.T) {
	f := fakegpu.NewFactory()
	a := New(f, Config{BlockSlots: 2})

	seen := make(map[Counter]bool)
	for range 5 {
		h, err := a.Allocate(1, 0)
		if err != nil {
			t.Fatal(err)
		}
		c, _ := a.Get(h)
		if seen[c] {
			t.Fatalf("counter location %+v handed out twice", c)
		}
		seen[c] = true
	}

	s := a.Stats()
	if s.Blocks != 3 || s.Slots != 6 || s.PendingInit != 5 || s.Free != 1 {
		t.Errorf("Stats() = %+v, want 3 blocks, 6 slots, 5 pending, 1 free", s)
	}

	a.Close()
	if f.BuffersDestroyed != 3 {
		t.Errorf("BuffersDestroyed = %d, want 3", f.BuffersDestroyed)
	}
}

func TestReclaimCompleted(t *testing.T) {
	a := New(fakegpu.NewFactory(), Config{})
	var hs []Handle
	for seq := gpucore.SequenceID(1); seq <= 4; seq++ {
		h, _ := a.Allocate(seq, 0)
		hs = append(hs, h)
	}
	for i, h := range hs {
		if err := a.Discard(gpucore.SequenceID(5+i), h); err != nil {
			t.Fatal(err)
		}
	}
	if n := a.ReclaimCompleted(6); n != 2 {
		t.Errorf("ReclaimCompleted(6) = %d, want 2", n)
	}
	if got := a.Stats().PendingDiscard; got != 2 {
		t.Errorf("PendingDiscard = %d, want 2", got)
	}
}

func TestContractViolations(t *testing.T) {
	tests := []struct {
		name string
		run  func(a *Allocator) error
		kind error
	}{
		{
			name: "allocate goes backwards",
			run: func(a *Allocator) error {
				a.Allocate(5, 0)
				_, err := a.Allocate(4, 0)
				return err
			},
			kind: gpucore.ErrStaleSequence,
		},
		{
			name: "allocate into flushed batch",
			run: func(a *Allocator) error {
				a.FlushInitializations(5, &fakegpu.Encoder{})
				_, err := a.Allocate(5, 0)
				return err
			},
			kind: gpucore.ErrStaleSequence,
		},
		{
			name: "double flush",
			run: func(a *Allocator) error {
				a.FlushInitializations(5, &fakegpu.Encoder{})
				return a.FlushInitializations(5, &fakegpu.Encoder{})
			},
			kind: gpucore.ErrStaleSequence,
		},
		{
			name: "discard unknown",
			run: func(a *Allocator) error {
				return a.Discard(1, 99)
			},
			kind: gpucore.ErrUnknownCounter,
		},
		{
			name: "double discard",
			run: func(a *Allocator) error {
				h, _ := a.Allocate(1, 0)
				a.Discard(2, h)
				return a.Discard(3, h)
			},
			kind: gpucore.ErrUnknownCounter,
		},
		{
			name: "get unknown",
			run: func(a *Allocator) error {
				_, err := a.Get(7)
				return err
			},
			kind: gpucore.ErrUnknownCounter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(New(fakegpu.NewFactory(), Config{}))
			if !errors.Is(err, tt.kind) {
				t.Errorf("error = %v, want %v", err, tt.kind)
			}
			if !gpucore.IsContractViolation(err) {
				t.Errorf("error = %v, want contract violation", err)
			}
		})
	}
}

func TestAllocateBlockFailure(t *testing.T) {
	f := fakegpu.NewFactory()
	f.FailBuffer = true
	a := New(f, Config{})
	if _, err := a.Allocate(1, 0); !errors.Is(err, gpucore.ErrConstruction) {
		t.Errorf("Allocate() error = %v, want ErrConstruction", err)
	}
}
