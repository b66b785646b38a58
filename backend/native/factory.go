package native

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

type texture struct {
	hal   hal.Texture
	desc  gpucore.TextureDesc
	usage gputypes.TextureUsage
}

type buffer struct {
	hal    hal.Buffer
	size   uint64
	usage  gputypes.BufferUsage
	mapped []byte
}

type view struct {
	hal     hal.TextureView
	texture gpucore.TextureID
	desc    gpucore.ViewDescriptor
}

// Factory is a gpucore.PhysicalFactory backed by a hal.Device.
// It is safe for concurrent use.
type Factory struct {
	mu     sync.Mutex
	device hal.Device
	nextID uint64

	textures map[gpucore.TextureID]*texture
	buffers  map[gpucore.BufferID]*buffer
	views    map[gpucore.ViewID]*view
}

// NewFactory wraps device.
func NewFactory(device hal.Device) (*Factory, error) {
	if device == nil {
		return nil, ErrNilHALDevice
	}
	return &Factory{
		device:   device,
		textures: make(map[gpucore.TextureID]*texture),
		buffers:  make(map[gpucore.BufferID]*buffer),
		views:    make(map[gpucore.ViewID]*view),
	}, nil
}

// Device returns the underlying HAL device.
func (f *Factory) Device() hal.Device { return f.device }

func (f *Factory) id() uint64 {
	f.nextID++
	return f.nextID
}

// CreateTexture implements gpucore.PhysicalFactory.
func (f *Factory) CreateTexture(desc gpucore.TextureDesc) (gpucore.TextureID, error) {
	t, err := f.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: max(desc.DepthOrArrayLayers, 1),
		},
		MipLevelCount: max(desc.MipLevelCount, 1),
		SampleCount:   max(desc.SampleCount, 1),
		Dimension:     desc.Dimension,
		Format:        desc.Format,
		Usage:         desc.Usage,
		ViewFormats:   desc.ViewFormats,
	})
	if err != nil {
		return gpucore.InvalidID, errors.Wrapf(err, "native: create texture %q", desc.Label)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := gpucore.TextureID(f.id())
	f.textures[id] = &texture{hal: t, desc: desc, usage: t.CurrentUsage()}
	return id, nil
}

// DestroyTexture implements gpucore.PhysicalFactory.
func (f *Factory) DestroyTexture(id gpucore.TextureID) {
	f.mu.Lock()
	t, ok := f.textures[id]
	delete(f.textures, id)
	f.mu.Unlock()
	if ok {
		f.device.DestroyTexture(t.hal)
	}
}

// CreateBuffer implements gpucore.PhysicalFactory. Host-visible buffers
// without a map usage get BufferUsageMapWrite and are mapped at creation.
func (f *Factory) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	usage := desc.Usage
	if desc.HostVisible && usage&(gputypes.BufferUsageMapRead|gputypes.BufferUsageMapWrite) == 0 {
		usage |= gputypes.BufferUsageMapWrite
	}
	b, err := f.device.CreateBuffer(&hal.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            usage,
		MappedAtCreation: desc.HostVisible,
	})
	if err != nil {
		return gpucore.InvalidID, errors.Wrapf(err, "native: create buffer %q", desc.Label)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := gpucore.BufferID(f.id())
	f.buffers[id] = &buffer{hal: b, size: desc.Size, usage: usage}
	return id, nil
}

// DestroyBuffer implements gpucore.PhysicalFactory.
func (f *Factory) DestroyBuffer(id gpucore.BufferID) {
	f.mu.Lock()
	b, ok := f.buffers[id]
	delete(f.buffers, id)
	f.mu.Unlock()
	if !ok {
		return
	}
	if b.mapped != nil {
		if err := f.device.UnmapBuffer(b.hal); err != nil {
			logging.Logger().Warn("native: unmap on destroy", "buffer", uint64(id), "err", err)
		}
	}
	f.device.DestroyBuffer(b.hal)
}

// MapBuffer implements gpucore.PhysicalFactory. The whole buffer stays
// mapped until it is destroyed.
func (f *Factory) MapBuffer(id gpucore.BufferID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buffers[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownHandle, "map buffer %d", id)
	}
	if b.mapped != nil {
		return b.mapped, nil
	}
	if b.size == 0 {
		return nil, errors.Wrapf(hal.ErrInvalidMapRange, "map empty buffer %d", id)
	}
	m, err := f.device.MapBuffer(b.hal, 0, b.size)
	if err != nil {
		return nil, errors.Wrapf(err, "native: map buffer %d", id)
	}
	if !m.IsCoherent {
		logging.Logger().Warn("native: mapped memory is not coherent", "buffer", uint64(id))
	}
	b.mapped = unsafe.Slice((*byte)(m.Ptr), b.size)
	return b.mapped, nil
}

// CreateView implements gpucore.PhysicalFactory.
func (f *Factory) CreateView(tex gpucore.TextureID, d gpucore.ViewDescriptor) (gpucore.ViewID, error) {
	dim := d.Kind.Dimension()
	if dim == gputypes.TextureViewDimensionUndefined {
		return gpucore.InvalidID, errors.Wrapf(ErrUnsupportedViewKind, "view %s", d)
	}

	f.mu.Lock()
	t, ok := f.textures[tex]
	f.mu.Unlock()
	if !ok {
		return gpucore.InvalidID, errors.Wrapf(ErrUnknownHandle, "view of texture %d", tex)
	}

	v, err := f.device.CreateTextureView(t.hal, &hal.TextureViewDescriptor{
		Label:           t.desc.Label,
		Format:          d.Format,
		Dimension:       dim,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    d.FirstMip,
		MipLevelCount:   d.MipCount,
		BaseArrayLayer:  d.FirstSlice,
		ArrayLayerCount: d.SliceCount,
	})
	if err != nil {
		return gpucore.InvalidID, errors.Wrapf(err, "native: create view %s", d)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := gpucore.ViewID(f.id())
	f.views[id] = &view{hal: v, texture: tex, desc: d}
	return id, nil
}

// DestroyView implements gpucore.PhysicalFactory.
func (f *Factory) DestroyView(id gpucore.ViewID) {
	f.mu.Lock()
	v, ok := f.views[id]
	delete(f.views, id)
	f.mu.Unlock()
	if ok {
		f.device.DestroyTextureView(v.hal)
	}
}

// HALTexture returns the HAL texture of id.
func (f *Factory) HALTexture(id gpucore.TextureID) (hal.Texture, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.textures[id]
	if !ok {
		return nil, false
	}
	return t.hal, true
}

// HALBuffer returns the HAL buffer of id.
func (f *Factory) HALBuffer(id gpucore.BufferID) (hal.Buffer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buffers[id]
	if !ok {
		return nil, false
	}
	return b.hal, true
}

// HALView returns the HAL view of id.
func (f *Factory) HALView(id gpucore.ViewID) (hal.TextureView, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.views[id]
	if !ok {
		return nil, false
	}
	return v.hal, true
}

// transitionTexture records usage as the texture's current usage and
// returns the barrier from the previous one. View handles limit the barrier
// to the view's subresources.
func (f *Factory) transitionTexture(h gpucore.Handle, usage gputypes.TextureUsage) (hal.TextureBarrier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	texID := gpucore.TextureID(h.ID)
	rng := hal.TextureRange{Aspect: gputypes.TextureAspectAll}
	if h.Kind == gpucore.HandleView {
		v, ok := f.views[gpucore.ViewID(h.ID)]
		if !ok {
			return hal.TextureBarrier{}, errors.Wrapf(ErrUnknownHandle, "barrier for %s", h)
		}
		texID = v.texture
		rng.BaseMipLevel = v.desc.FirstMip
		rng.MipLevelCount = v.desc.MipCount
		rng.BaseArrayLayer = v.desc.FirstSlice
		rng.ArrayLayerCount = v.desc.SliceCount
	}
	t, ok := f.textures[texID]
	if !ok {
		return hal.TextureBarrier{}, errors.Wrapf(ErrUnknownHandle, "barrier for %s", h)
	}
	b := hal.TextureBarrier{
		Texture: t.hal,
		Range:   rng,
		Usage:   hal.TextureUsageTransition{OldUsage: t.usage, NewUsage: usage},
	}
	t.usage = usage
	return b, nil
}

func (f *Factory) transitionBuffer(id gpucore.BufferID, usage gputypes.BufferUsage) (hal.BufferBarrier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buffers[id]
	if !ok {
		return hal.BufferBarrier{}, errors.Wrapf(ErrUnknownHandle, "barrier for buffer %d", id)
	}
	barrier := hal.BufferBarrier{
		Buffer: b.hal,
		Usage:  hal.BufferUsageTransition{OldUsage: b.usage, NewUsage: usage},
	}
	b.usage = usage
	return barrier, nil
}

var _ gpucore.PhysicalFactory = (*Factory)(nil)
