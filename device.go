// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gpures/backend"
	"github.com/gogpu/gpures/counter"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
	"github.com/gogpu/gpures/resource"
	"github.com/gogpu/gpures/staging"
)

// Device errors.
var (
	// ErrNilFactory is returned when creating a Device without a factory.
	ErrNilFactory = errors.New("gpures: physical factory is nil")

	// ErrNilClock is returned when creating a Device without a clock.
	ErrNilClock = errors.New("gpures: sequence clock is nil")

	// ErrClosed is returned by operations on a closed Device.
	ErrClosed = errors.New("gpures: device is closed")
)

// DynamicBuffer is a buffer written with discard semantics: every Discard
// moves it to a fresh allocation from its renaming pool.
type DynamicBuffer struct {
	*resource.Logical
	pool *resource.RenamingPool
}

// Pool returns the buffer's renaming pool.
func (b *DynamicBuffer) Pool() *resource.RenamingPool { return b.pool }

// Device ties the resource core to one physical factory and one sequence
// clock. It owns the counter allocator and the deferred release queue, and
// tracks the resources, pools and staging guards it created so Close can
// free them.
//
// Device is safe for concurrent use; the resources it returns follow their
// own package rules.
type Device struct {
	factory  gpucore.PhysicalFactory
	clock    gpucore.SequenceClock
	counters *counter.Allocator
	releases resource.ReleaseQueue
	opts     options

	mu        sync.Mutex
	resources map[*resource.Logical]struct{}
	pools     map[*resource.Logical]*resource.RenamingPool
	guards    []*staging.Guard
	closed    bool
}

// NewDevice creates a Device.
func NewDevice(factory gpucore.PhysicalFactory, clock gpucore.SequenceClock, opts ...Option) (*Device, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	if clock == nil {
		return nil, ErrNilClock
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}

	d := &Device{
		factory:  factory,
		clock:    clock,
		counters:  counter.New(factory, counter.Config{BlockSlots: o.counterBlockSlots}),
		opts:      o,
		resources: make(map[*resource.Logical]struct{}),
		pools:     make(map[*resource.Logical]*resource.RenamingPool),
	}
	logging.Logger().Debug("gpures: device created",
		"renameCapacity", o.renameCapacity, "counterBlockSlots", o.counterBlockSlots)
	return d, nil
}

// OpenDevice creates a Device on the GPU device of a host application,
// through the backend chosen by WithBackend or the best available one.
// Backends register on import:
//
//	import _ "github.com/gogpu/gpures/backend/native"
func OpenDevice(provider gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var b *backend.Backend
	var err error
	if o.backend != "" {
		b, err = backend.Open(o.backend, provider)
	} else {
		b, err = backend.Default(provider)
	}
	if err != nil {
		return nil, err
	}
	d, err := NewDevice(b.Factory, b.Clock, opts...)
	if err != nil {
		return nil, err
	}
	logging.Logger().Info("gpures: backend opened", "backend", b.Name)
	return d, nil
}

// Factory returns the physical factory.
func (d *Device) Factory() gpucore.PhysicalFactory { return d.factory }

// Clock returns the sequence clock.
func (d *Device) Clock() gpucore.SequenceClock { return d.clock }

// Counters returns the counter allocator.
func (d *Device) Counters() *counter.Allocator { return d.counters }

// PendingReleases returns the number of allocations waiting for their
// sequence to complete.
func (d *Device) PendingReleases() int { return d.releases.Len() }

func (d *Device) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

// NewTexture creates a texture resource. It lives until Destroy or Close.
func (d *Device) NewTexture(desc gpucore.TextureDesc) (*resource.Logical, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	res, err := resource.NewTexture(d.factory, desc)
	if err != nil {
		return nil, err
	}
	return d.track(res)
}

// NewBuffer creates a buffer resource. It lives until Destroy or Close.
func (d *Device) NewBuffer(desc gpucore.BufferDesc) (*resource.Logical, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	res, err := resource.NewBuffer(d.factory, desc)
	if err != nil {
		return nil, err
	}
	return d.track(res)
}

func (d *Device) track(res *resource.Logical) (*resource.Logical, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		if err := res.Release(); err != nil {
			logging.Logger().Warn("gpures: release", "err", err)
		}
		return nil, ErrClosed
	}
	d.resources[res] = struct{}{}
	return res, nil
}

// NewDynamicBuffer creates a buffer resource with a renaming pool sized by
// WithRenameCapacity.
func (d *Device) NewDynamicBuffer(desc gpucore.BufferDesc) (*DynamicBuffer, error) {
	res, err := d.NewBuffer(desc)
	if err != nil {
		return nil, err
	}
	pool := resource.NewRenamingPool(res, resource.PoolConfig{Capacity: d.opts.renameCapacity})

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	d.pools[res] = pool
	return &DynamicBuffer{Logical: res, pool: pool}, nil
}

// Discard renames b to the next allocation of its pool for frame and
// retires the previous allocation once batch seq completes. It returns the
// new current allocation.
//
// A seq lower than one already retired is rejected before anything is
// renamed.
func (d *Device) Discard(b *DynamicBuffer, frame uint64, seq gpucore.SequenceID) (*resource.Allocation, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	_, err := d.releases.DeferFrom(seq, func() (*resource.Allocation, error) {
		return b.pool.Discard(frame)
	})
	if err != nil {
		return nil, err
	}
	return b.Current(), nil
}

// Destroy ends the life of a resource created by d, as when the owning API
// object is destroyed. Its current allocation, and the pooled allocations
// of a dynamic buffer, are released once batch seq completes.
func (d *Device) Destroy(res *resource.Logical, seq gpucore.SequenceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if _, ok := d.resources[res]; !ok {
		return gpucore.Violation(gpucore.ErrReleased, "destroy of a resource the device does not own")
	}
	if _, err := d.releases.DeferFrom(seq, res.Detach); err != nil {
		return err
	}
	delete(d.resources, res)
	if pool, ok := d.pools[res]; ok {
		delete(d.pools, res)
		for _, a := range pool.Detach() {
			// Cannot fail: seq was just accepted.
			_ = d.releases.Defer(seq, a)
		}
	}
	return nil
}

// Retire releases a once batch seq completes.
func (d *Device) Retire(seq gpucore.SequenceID, a *resource.Allocation) error {
	return d.releases.Defer(seq, a)
}

// NewStaging creates a staging guard for a texture.
func (d *Device) NewStaging(desc staging.Desc) (*staging.Guard, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	g, err := staging.New(d.factory, desc)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		g.Close()
		return nil, ErrClosed
	}
	d.guards = append(d.guards, g)
	return g, nil
}

// MapWait maps sub of g, blocking until the needed fences complete or ctx
// ends. Clocks that implement staging.Waiter are waited on directly, others
// are polled.
func (d *Device) MapWait(ctx context.Context, g *staging.Guard, sub int, mode staging.MapMode) (staging.MapResult, error) {
	w, ok := d.clock.(staging.Waiter)
	if !ok {
		w = pollWaiter{clock: d.clock, interval: d.opts.pollInterval}
	}
	return staging.MapWait(ctx, g, sub, w, mode)
}

// Collect frees what became safe to free at completed: discarded counters
// and retired allocations. It returns the number of each.
func (d *Device) Collect(completed gpucore.SequenceID) (counters, allocations int) {
	counters = d.counters.ReclaimCompleted(completed)
	allocations = d.releases.Collect(completed)
	if counters+allocations > 0 {
		logging.Logger().Debug("gpures: collected",
			"completed", uint64(completed), "counters", counters, "allocations", allocations)
	}
	return counters, allocations
}

// Poll reads the clock and collects up to its completed sequence.
func (d *Device) Poll() (counters, allocations int) {
	return d.Collect(d.clock.Completed())
}

// Close frees everything the device owns. The GPU must be idle.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	resources, pools, guards := d.resources, d.pools, d.guards
	d.resources, d.pools, d.guards = nil, nil, nil
	d.mu.Unlock()

	d.releases.Drain()
	for _, p := range pools {
		p.Close()
	}
	for res := range resources {
		if err := res.Release(); err != nil {
			logging.Logger().Warn("gpures: release on close", "err", err)
		}
	}
	for _, g := range guards {
		g.Close()
	}
	d.counters.Close()
}
