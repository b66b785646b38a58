// Package fakegpu provides in-memory test doubles for the gpucore
// collaborator interfaces.
package fakegpu

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpures/gpucore"
)

// ErrInjected is returned by calls the test asked to fail.
var ErrInjected = errors.New("fakegpu: injected failure")

// Factory is a gpucore.PhysicalFactory that records every call.
// It is safe for concurrent use.
type Factory struct {
	mu sync.Mutex

	nextID uint64

	textures map[gpucore.TextureID]gpucore.TextureDesc
	buffers  map[gpucore.BufferID][]byte
	views    map[gpucore.ViewID]gpucore.ViewDescriptor

	// BuffersCreated lists every buffer descriptor, in order.
	BuffersCreated []gpucore.BufferDesc

	// ViewsCreated lists every view descriptor built, in order.
	ViewsCreated []gpucore.ViewDescriptor

	// Destroyed counts destroy calls per kind.
	TexturesDestroyed int
	BuffersDestroyed  int
	ViewsDestroyed    int

	// FailView makes CreateView fail for descriptors it returns true for.
	FailView func(gpucore.ViewDescriptor) bool

	// FailTexture and FailBuffer make the next creations fail.
	FailTexture bool
	FailBuffer  bool
}

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{
		textures: make(map[gpucore.TextureID]gpucore.TextureDesc),
		buffers:  make(map[gpucore.BufferID][]byte),
		views:    make(map[gpucore.ViewID]gpucore.ViewDescriptor),
	}
}

func (f *Factory) id() uint64 {
	f.nextID++
	return f.nextID
}

// CreateTexture implements gpucore.PhysicalFactory.
func (f *Factory) CreateTexture(desc gpucore.TextureDesc) (gpucore.TextureID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailTexture {
		return gpucore.InvalidID, ErrInjected
	}
	id := gpucore.TextureID(f.id())
	f.textures[id] = desc
	return id, nil
}

// DestroyTexture implements gpucore.PhysicalFactory.
func (f *Factory) DestroyTexture(id gpucore.TextureID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.textures, id)
	f.TexturesDestroyed++
}

// CreateBuffer implements gpucore.PhysicalFactory.
func (f *Factory) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailBuffer {
		return gpucore.InvalidID, ErrInjected
	}
	id := gpucore.BufferID(f.id())
	f.buffers[id] = make([]byte, desc.Size)
	f.BuffersCreated = append(f.BuffersCreated, desc)
	return id, nil
}

// DestroyBuffer implements gpucore.PhysicalFactory.
func (f *Factory) DestroyBuffer(id gpucore.BufferID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.buffers, id)
	f.BuffersDestroyed++
}

// MapBuffer implements gpucore.PhysicalFactory.
func (f *Factory) MapBuffer(id gpucore.BufferID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.buffers[id]
	if !ok {
		return nil, ErrInjected
	}
	return data, nil
}

// CreateView implements gpucore.PhysicalFactory.
func (f *Factory) CreateView(texture gpucore.TextureID, desc gpucore.ViewDescriptor) (gpucore.ViewID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.textures[texture]; !ok {
		return gpucore.InvalidID, ErrInjected
	}
	if f.FailView != nil && f.FailView(desc) {
		return gpucore.InvalidID, ErrInjected
	}
	id := gpucore.ViewID(f.id())
	f.views[id] = desc
	f.ViewsCreated = append(f.ViewsCreated, desc)
	return id, nil
}

// DestroyView implements gpucore.PhysicalFactory.
func (f *Factory) DestroyView(id gpucore.ViewID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.views, id)
	f.ViewsDestroyed++
}

// LiveTextures returns the number of textures not yet destroyed.
func (f *Factory) LiveTextures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.textures)
}

// LiveBuffers returns the number of buffers not yet destroyed.
func (f *Factory) LiveBuffers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buffers)
}

// Fill is one EmitFill call.
type Fill struct {
	Buffer gpucore.BufferID
	Offset uint64
	Size   uint64
	Value  uint32
}

// Declaration is one DeclareResidency call.
type Declaration struct {
	Handle gpucore.Handle
	Access gpucore.Access
	Stages gputypes.ShaderStage
}

// Encoder is a gpucore.Encoder that records commands.
type Encoder struct {
	Fills        []Fill
	Declarations []Declaration
}

// DeclareResidency implements gpucore.Encoder.
func (e *Encoder) DeclareResidency(h gpucore.Handle, access gpucore.Access, stages gputypes.ShaderStage) {
	e.Declarations = append(e.Declarations, Declaration{Handle: h, Access: access, Stages: stages})
}

// EmitFill implements gpucore.Encoder.
func (e *Encoder) EmitFill(buffer gpucore.BufferID, offset, size uint64, value uint32) {
	e.Fills = append(e.Fills, Fill{Buffer: buffer, Offset: offset, Size: size, Value: value})
}

var (
	_ gpucore.PhysicalFactory = (*Factory)(nil)
	_ gpucore.Encoder         = (*Encoder)(nil)
)
