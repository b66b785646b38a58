package resource

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
	"github.com/gogpu/gpures/residency"
)

// errNoTexture is the construction cause for views requested on a buffer.
var errNoTexture = errors.New("resource: allocation has no texture to view")

// ViewKey indexes the descriptor list of a Logical resource.
type ViewKey uint32

// Kind tells what a Logical resource allocates.
type Kind uint8

const (
	// KindTexture resources allocate textures.
	KindTexture Kind = iota + 1
	// KindBuffer resources allocate buffers.
	KindBuffer
)

// Logical is the stable identity of a texture or buffer. The physical
// backing (the current Allocation) can be swapped with Rename while the
// ordered list of view descriptors ever requested keeps growing.
//
// Current may be called concurrently with everything. Rename assumes a
// single writer per resource. CreateView is safe for concurrent use.
type Logical struct {
	factory gpucore.PhysicalFactory
	kind    Kind
	texture gpucore.TextureDesc
	buffer  gpucore.BufferDesc

	current atomic.Pointer[Allocation]

	mu          sync.RWMutex
	descriptors []gpucore.ViewDescriptor
	version     uint32
}

// NewTexture creates a texture resource and its first allocation.
func NewTexture(factory gpucore.PhysicalFactory, desc gpucore.TextureDesc) (*Logical, error) {
	l := &Logical{factory: factory, kind: KindTexture, texture: desc}
	return l.init()
}

// NewBuffer creates a buffer resource and its first allocation.
func NewBuffer(factory gpucore.PhysicalFactory, desc gpucore.BufferDesc) (*Logical, error) {
	l := &Logical{factory: factory, kind: KindBuffer, buffer: desc}
	return l.init()
}

func (l *Logical) init() (*Logical, error) {
	a, err := l.Allocate()
	if err != nil {
		return nil, err
	}
	l.current.Store(a)
	return l, nil
}

// Kind returns whether the resource is a texture or a buffer.
func (l *Logical) Kind() Kind { return l.kind }

// TextureDesc returns the descriptor new texture allocations are built from.
func (l *Logical) TextureDesc() gpucore.TextureDesc { return l.texture }

// BufferDesc returns the descriptor new buffer allocations are built from.
func (l *Logical) BufferDesc() gpucore.BufferDesc { return l.buffer }

// Allocate builds a fresh physical allocation matching the resource. The
// caller owns the returned reference.
func (l *Logical) Allocate() (*Allocation, error) {
	if l.kind == KindTexture {
		return newTextureAllocation(l.factory, l.texture)
	}
	return newBufferAllocation(l.factory, l.buffer)
}

// Current returns the allocation currently backing the resource, or nil
// once the resource has been released. It has no side effects.
func (l *Logical) Current() *Allocation { return l.current.Load() }

func (l *Logical) label() string {
	if l.kind == KindTexture {
		return l.texture.Label
	}
	return l.buffer.Label
}

// Detach ends the resource's life and hands the reference it held on its
// current allocation to the caller, who releases it once no in-flight batch
// can use it. Later Rename, UseView and ResolveView calls are contract
// violations.
func (l *Logical) Detach() (*Allocation, error) {
	a := l.current.Swap(nil)
	if a == nil {
		return nil, gpucore.Violation(gpucore.ErrReleased, "resource %q released twice", l.label())
	}
	logging.Logger().Debug("resource: released", "label", l.label())
	return a, nil
}

// Release ends the resource's life and drops its reference on the current
// allocation immediately. Use Detach when the GPU may still use it.
func (l *Logical) Release() error {
	a, err := l.Detach()
	if err != nil {
		return err
	}
	return a.Release()
}

// Version returns the number of distinct view descriptors requested so far.
func (l *Logical) Version() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Descriptors returns a copy of the descriptor list.
func (l *Logical) Descriptors() []gpucore.ViewDescriptor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]gpucore.ViewDescriptor, len(l.descriptors))
	copy(out, l.descriptors)
	return out
}

// Descriptor returns the descriptor registered under key.
func (l *Logical) Descriptor(key ViewKey) (gpucore.ViewDescriptor, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if uint32(key) >= l.version {
		return gpucore.ViewDescriptor{}, gpucore.Violation(gpucore.ErrUnknownView,
			"view key %d, resource has %d descriptors", key, l.version)
	}
	return l.descriptors[key], nil
}

// CreateView returns the key of d, appending it when it was never requested.
// Descriptors are never removed or merged.
func (l *Logical) CreateView(d gpucore.ViewDescriptor) ViewKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.descriptors {
		if existing == d {
			return ViewKey(i)
		}
	}
	l.descriptors = append(l.descriptors, d)
	l.version++
	return ViewKey(l.version - 1)
}

// ResolveView returns the view for key built on a, constructing every view
// a is missing first. Construction stops at the first factory failure: views
// built before it are kept and the failure is returned marked
// gpucore.ErrConstruction.
func (l *Logical) ResolveView(key ViewKey, a *Allocation) (*View, error) {
	if a == nil || a.Released() {
		return nil, gpucore.Violation(gpucore.ErrReleased, "resolve view %d on released allocation", key)
	}

	l.mu.RLock()
	version := l.version
	pending := l.descriptors[min(a.synced, version):version]
	l.mu.RUnlock()

	if uint32(key) >= version {
		return nil, gpucore.Violation(gpucore.ErrUnknownView,
			"view key %d, resource has %d descriptors", key, version)
	}

	for _, d := range pending {
		if a.texture == gpucore.InvalidID {
			return nil, gpucore.ConstructionFailed(errNoTexture, "view %s", d)
		}
		id, err := l.factory.CreateView(a.texture, d)
		if err != nil {
			return nil, gpucore.ConstructionFailed(err, "view %s of %q", d, a.label)
		}
		a.views = append(a.views, &View{id: id, descriptor: d})
		a.synced++
		logging.Logger().Debug("resource: view built",
			"label", a.label, "index", a.synced-1, "descriptor", d.String())
	}
	return a.views[key], nil
}

// UseView resolves key on the current allocation and declares its
// residency for encoder.
func (l *Logical) UseView(key ViewKey, enc gpucore.Encoder, encoder uint64, mask residency.Mask) (*View, error) {
	v, err := l.ResolveView(key, l.Current())
	if err != nil {
		return nil, err
	}
	if err := residency.Declare(&v.residency, enc, encoder, v.Handle(), mask); err != nil {
		return nil, err
	}
	return v, nil
}

// Rename makes next the current allocation and returns the previous one.
// The resource takes a reference on next; the reference it held on the
// previous allocation moves to the caller, who must release it once no
// in-flight batch can still use it.
func (l *Logical) Rename(next *Allocation) (*Allocation, error) {
	if next == nil {
		return nil, gpucore.Violation(gpucore.ErrReleased, "rename to nil allocation")
	}
	if err := next.Retain(); err != nil {
		return nil, err
	}
	for {
		prev := l.current.Load()
		if prev == nil {
			release(next)
			return nil, gpucore.Violation(gpucore.ErrReleased, "rename of released resource %q", l.label())
		}
		if l.current.CompareAndSwap(prev, next) {
			logging.Logger().Debug("resource: renamed", "from", prev.label, "to", next.label)
			return prev, nil
		}
	}
}

// CheckedCastDimensionality returns key when its descriptor already has the
// requested dimensionality, and otherwise the key of its arrayed or
// non-arrayed dual, creating it on demand. Kinds without a dual (3D, buffer)
// are returned unchanged.
func (l *Logical) CheckedCastDimensionality(key ViewKey, wantArray bool) (ViewKey, error) {
	d, err := l.Descriptor(key)
	if err != nil {
		return 0, err
	}
	if d.Kind.IsArray() == wantArray {
		return key, nil
	}
	dual, ok := d.Kind.ArrayDual()
	if !ok {
		return key, nil
	}
	d.Kind = dual
	if !wantArray {
		d.SliceCount = 1
		if dual == gpucore.ViewKindCube {
			d.SliceCount = 6
		}
	}
	return l.CreateView(d), nil
}

// CheckedCastFormat returns key when its descriptor already uses format,
// and otherwise the key of the same view reinterpreted as format. Whether
// the driver supports the reinterpretation is only known when the view is
// built: ResolveView reports a refusal marked gpucore.ErrConstruction.
func (l *Logical) CheckedCastFormat(key ViewKey, format gputypes.TextureFormat) (ViewKey, error) {
	d, err := l.Descriptor(key)
	if err != nil {
		return 0, err
	}
	if d.Format == format {
		return key, nil
	}
	d.Format = format
	return l.CreateView(d), nil
}
