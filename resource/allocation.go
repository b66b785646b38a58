package resource

import (
	"sync/atomic"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
	"github.com/gogpu/gpures/residency"
)

// View is one built view of an Allocation. Views are never shared between
// allocations, even for equal descriptors, because their residency state is
// scoped to the allocation.
type View struct {
	id         gpucore.ViewID
	descriptor gpucore.ViewDescriptor
	residency  residency.Record
}

// ID returns the physical view handle.
func (v *View) ID() gpucore.ViewID { return v.id }

// Descriptor returns the descriptor the view was built from.
func (v *View) Descriptor() gpucore.ViewDescriptor { return v.descriptor }

// Residency returns the view's residency record.
func (v *View) Residency() *residency.Record { return &v.residency }

// Handle returns the residency handle of the view.
func (v *View) Handle() gpucore.Handle { return gpucore.ViewHandle(v.id) }

// Allocation is one physical instance backing a Logical resource: either a
// texture or a buffer, plus the views built from it so far.
//
// Allocations are reference counted. The creator holds the first reference;
// the last Release destroys every view and the physical object. Lazy view
// construction is not synchronized: callers serialize ResolveView per
// Allocation, matching the single encoder-building goroutine.
type Allocation struct {
	factory gpucore.PhysicalFactory

	texture gpucore.TextureID
	buffer  gpucore.BufferID

	// mapped is the CPU-visible memory of host-visible buffers.
	mapped []byte

	views  []*View
	synced uint32

	residency residency.Record

	refs     atomic.Int32
	released atomic.Bool
	label    string
}

func newTextureAllocation(factory gpucore.PhysicalFactory, desc gpucore.TextureDesc) (*Allocation, error) {
	id, err := factory.CreateTexture(desc)
	if err != nil {
		return nil, gpucore.ConstructionFailed(err, "create texture %q", desc.Label)
	}
	a := &Allocation{factory: factory, texture: id, label: desc.Label}
	a.refs.Store(1)
	return a, nil
}

func newBufferAllocation(factory gpucore.PhysicalFactory, desc gpucore.BufferDesc) (*Allocation, error) {
	id, err := factory.CreateBuffer(desc)
	if err != nil {
		return nil, gpucore.ConstructionFailed(err, "create buffer %q (%d bytes)", desc.Label, desc.Size)
	}
	a := &Allocation{factory: factory, buffer: id, label: desc.Label}
	if desc.HostVisible {
		data, err := factory.MapBuffer(id)
		if err != nil {
			factory.DestroyBuffer(id)
			return nil, gpucore.ConstructionFailed(err, "map buffer %q", desc.Label)
		}
		a.mapped = data
	}
	a.refs.Store(1)
	return a, nil
}

// Texture returns the physical texture, or InvalidID for buffer allocations.
func (a *Allocation) Texture() gpucore.TextureID { return a.texture }

// Buffer returns the physical buffer, or InvalidID for texture allocations.
func (a *Allocation) Buffer() gpucore.BufferID { return a.buffer }

// Mapped returns the CPU-visible bytes of a host-visible buffer allocation,
// nil otherwise.
func (a *Allocation) Mapped() []byte { return a.mapped }

// Handle returns the residency handle of the physical object.
func (a *Allocation) Handle() gpucore.Handle {
	if a.texture != gpucore.InvalidID {
		return gpucore.TextureHandle(a.texture)
	}
	return gpucore.BufferHandle(a.buffer)
}

// Residency returns the residency record of the physical object itself.
func (a *Allocation) Residency() *residency.Record { return &a.residency }

// SyncedVersion returns how many descriptors of the owning resource have
// views built on this allocation.
func (a *Allocation) SyncedVersion() uint32 { return a.synced }

// CachedViews returns the number of views built so far.
func (a *Allocation) CachedViews() int { return len(a.views) }

// Label returns the debug label.
func (a *Allocation) Label() string { return a.label }

// Refs returns the current reference count.
func (a *Allocation) Refs() int32 { return a.refs.Load() }

// Released reports whether the last reference has been dropped.
func (a *Allocation) Released() bool { return a.released.Load() }

// Retain adds a reference. Retaining a released allocation is a contract
// violation.
func (a *Allocation) Retain() error {
	for {
		n := a.refs.Load()
		if n <= 0 {
			return gpucore.Violation(gpucore.ErrReleased, "retain of released allocation %q", a.label)
		}
		if a.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference and destroys the physical object and its views
// when it was the last one.
func (a *Allocation) Release() error {
	n := a.refs.Add(-1)
	switch {
	case n > 0:
		return nil
	case n < 0:
		a.refs.Add(1)
		return gpucore.Violation(gpucore.ErrReleased, "release of released allocation %q", a.label)
	}

	a.released.Store(true)
	for _, v := range a.views {
		a.factory.DestroyView(v.id)
	}
	a.views = nil
	a.mapped = nil
	if a.texture != gpucore.InvalidID {
		a.factory.DestroyTexture(a.texture)
	}
	if a.buffer != gpucore.InvalidID {
		a.factory.DestroyBuffer(a.buffer)
	}
	logging.Logger().Debug("resource: allocation destroyed", "label", a.label)
	return nil
}

// Use declares residency of the physical object for encoder.
func (a *Allocation) Use(enc gpucore.Encoder, encoder uint64, mask residency.Mask) error {
	if a.Released() {
		return gpucore.Violation(gpucore.ErrReleased, "use of released allocation %q", a.label)
	}
	return residency.Declare(&a.residency, enc, encoder, a.Handle(), mask)
}
