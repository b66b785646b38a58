// Package staging guards CPU access to CPU-visible copies of GPU resources.
//
// Every subresource keeps two fences. A copy into the staging memory sets
// both, since a later CPU read or write must wait for it. A copy out of the
// staging memory sets only the write fence, since CPU reads may overlap it.
// TryMap never blocks: when a fence is still pending it reports Busy with
// the number of batches left to complete, and the caller decides whether to
// wait (see MapWait), retry, or give up.
package staging

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

var errUnsupportedFormat = errors.New("staging: format has no CPU layout")

// MapMode selects which fences a map waits for.
type MapMode uint8

// Map modes.
const (
	MapRead MapMode = 1 << iota
	MapWrite

	MapReadWrite = MapRead | MapWrite
)

// String returns the mode name.
func (m MapMode) String() string {
	switch m {
	case MapRead:
		return "Read"
	case MapWrite:
		return "Write"
	case MapReadWrite:
		return "ReadWrite"
	default:
		return fmt.Sprintf("MapMode(%d)", uint8(m))
	}
}

// Status is the outcome of a successful TryMap call.
type Status uint8

// Map statuses.
const (
	Ready Status = iota + 1
	Busy
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Busy:
		return "Busy"
	default:
		return "Unknown"
	}
}

// MapResult describes a TryMap outcome. Wait is set for Busy, the memory
// fields for Ready.
type MapResult struct {
	Status Status

	// Wait is how many more batches must complete before the map can
	// succeed. It is a count, not a duration.
	Wait uint64

	Data       []byte
	RowPitch   uint32
	DepthPitch uint32
}

// Desc describes the resource mirrored by a Guard.
type Desc struct {
	Label  string
	Format gputypes.TextureFormat

	Width  uint32
	Height uint32
	// Depth is the depth of 3D textures; 1 otherwise.
	Depth uint32

	MipLevels   uint32
	ArrayLayers uint32

	// Access is how the CPU will map the staging memory. MapRead guards
	// are readback copies, MapWrite guards are upload copies. Zero means
	// MapReadWrite. TryMap rejects modes outside Access.
	Access MapMode
}

// bufferUsage returns the usage of staging buffers mapped with access.
func bufferUsage(access MapMode) gputypes.BufferUsage {
	usage := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if access&MapRead != 0 {
		usage |= gputypes.BufferUsageMapRead
	}
	if access&MapWrite != 0 {
		usage |= gputypes.BufferUsageMapWrite
	}
	return usage
}

func validMode(m MapMode) bool {
	return m&MapReadWrite != 0 && m&^MapReadWrite == 0
}

type entry struct {
	buffer     gpucore.BufferID
	data       []byte
	rowPitch   uint32
	depthPitch uint32

	readFence  gpucore.SequenceID
	writeFence gpucore.SequenceID
	mapped     bool
}

// Guard owns one persistently mapped CPU-visible buffer per subresource and
// its fences. It is safe for concurrent use.
type Guard struct {
	mu        sync.Mutex
	factory   gpucore.PhysicalFactory
	label     string
	access    MapMode
	mipLevels uint32
	entries   []entry
	closed    bool
}

func mipExtent(v, mip uint32) uint32 {
	return max(v>>mip, 1)
}

// New creates a guard for a texture described by desc. On failure nothing is
// left allocated.
func New(factory gpucore.PhysicalFactory, desc Desc) (*Guard, error) {
	layout, ok := gpucore.LayoutOf(desc.Format)
	if !ok {
		return nil, gpucore.ConstructionFailed(errUnsupportedFormat, "staging %q format %v", desc.Label, desc.Format)
	}
	if desc.Access == 0 {
		desc.Access = MapReadWrite
	}
	if !validMode(desc.Access) {
		return nil, gpucore.Violation(gpucore.ErrOutOfRange, "staging %q access %v", desc.Label, desc.Access)
	}
	desc.Depth = max(desc.Depth, 1)
	desc.MipLevels = max(desc.MipLevels, 1)
	desc.ArrayLayers = max(desc.ArrayLayers, 1)

	g := &Guard{factory: factory, label: desc.Label, access: desc.Access, mipLevels: desc.MipLevels}
	for slice := uint32(0); slice < desc.ArrayLayers; slice++ {
		for mip := uint32(0); mip < desc.MipLevels; mip++ {
			row, depthPitch := layout.Pitches(mipExtent(desc.Width, mip), mipExtent(desc.Height, mip))
			size := uint64(depthPitch) * uint64(mipExtent(desc.Depth, mip))
			if err := g.add(size, row, depthPitch); err != nil {
				g.Close()
				return nil, err
			}
		}
	}
	logging.Logger().Debug("staging: guard created",
		"label", desc.Label, "subresources", len(g.entries))
	return g, nil
}

// NewBuffer creates a guard with a single subresource of size bytes, mapped
// with access.
func NewBuffer(factory gpucore.PhysicalFactory, label string, size uint64, access MapMode) (*Guard, error) {
	if !validMode(access) {
		return nil, gpucore.Violation(gpucore.ErrOutOfRange, "staging %q access %v", label, access)
	}
	g := &Guard{factory: factory, label: label, access: access, mipLevels: 1}
	if err := g.add(size, uint32(size), uint32(size)); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Guard) add(size uint64, rowPitch, depthPitch uint32) error {
	id, err := g.factory.CreateBuffer(gpucore.BufferDesc{
		Label:       g.label,
		Size:        size,
		Usage:       bufferUsage(g.access),
		HostVisible: true,
	})
	if err != nil {
		return gpucore.ConstructionFailed(err, "staging %q subresource %d", g.label, len(g.entries))
	}
	data, err := g.factory.MapBuffer(id)
	if err != nil {
		g.factory.DestroyBuffer(id)
		return gpucore.ConstructionFailed(err, "map staging %q subresource %d", g.label, len(g.entries))
	}
	g.entries = append(g.entries, entry{
		buffer:     id,
		data:       data,
		rowPitch:   rowPitch,
		depthPitch: depthPitch,
	})
	return nil
}

// Subresources returns the number of subresources.
func (g *Guard) Subresources() int { return len(g.entries) }

// Subresource returns the index of (mip, slice).
func (g *Guard) Subresource(mip, slice uint32) int {
	return int(mip + slice*g.mipLevels)
}

// Buffer returns the staging buffer of sub, the copy source or destination
// the caller records GPU copies against.
func (g *Guard) Buffer(sub int) (gpucore.BufferID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.entry(sub)
	if err != nil {
		return gpucore.InvalidID, err
	}
	return e.buffer, nil
}

// Fences returns the read and write fences of sub.
func (g *Guard) Fences(sub int) (read, write gpucore.SequenceID, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.entry(sub)
	if err != nil {
		return 0, 0, err
	}
	return e.readFence, e.writeFence, nil
}

// entry returns the entry of sub. Caller must hold g.mu.
func (g *Guard) entry(sub int) (*entry, error) {
	if g.closed {
		return nil, gpucore.Violation(gpucore.ErrReleased, "staging %q is closed", g.label)
	}
	if sub < 0 || sub >= len(g.entries) {
		return nil, gpucore.Violation(gpucore.ErrOutOfRange,
			"staging %q subresource %d, have %d", g.label, sub, len(g.entries))
	}
	return &g.entries[sub], nil
}

// UseAsCopyDestination records that batch seq writes sub. Later CPU reads
// and writes must wait for seq.
func (g *Guard) UseAsCopyDestination(sub int, seq gpucore.SequenceID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.entry(sub)
	if err != nil {
		return err
	}
	if e.mapped {
		return gpucore.Violation(gpucore.ErrAlreadyMapped, "copy into mapped staging %q subresource %d", g.label, sub)
	}
	if seq < e.readFence || seq < e.writeFence {
		return gpucore.Violation(gpucore.ErrStaleSequence,
			"copy into staging %q at sequence %d, fences at (%d, %d)", g.label, seq, e.readFence, e.writeFence)
	}
	e.readFence = seq
	e.writeFence = seq
	return nil
}

// UseAsCopySource records that batch seq reads sub. Later CPU writes must
// wait for seq; CPU reads need not.
func (g *Guard) UseAsCopySource(sub int, seq gpucore.SequenceID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.entry(sub)
	if err != nil {
		return err
	}
	if e.mapped {
		return gpucore.Violation(gpucore.ErrAlreadyMapped, "copy from mapped staging %q subresource %d", g.label, sub)
	}
	if seq < e.writeFence {
		return gpucore.Violation(gpucore.ErrStaleSequence,
			"copy from staging %q at sequence %d, write fence at %d", g.label, seq, e.writeFence)
	}
	e.writeFence = seq
	return nil
}

// TryMap maps sub for the CPU when the fences selected by mode have
// completed. Mapping an already mapped subresource fails with
// gpucore.ErrAlreadyMapped regardless of fences.
func (g *Guard) TryMap(sub int, completed gpucore.SequenceID, mode MapMode) (MapResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.entry(sub)
	if err != nil {
		return MapResult{}, err
	}
	if e.mapped {
		return MapResult{}, gpucore.Violation(gpucore.ErrAlreadyMapped,
			"staging %q subresource %d mapped twice", g.label, sub)
	}
	if !validMode(mode) || mode&^g.access != 0 {
		return MapResult{}, gpucore.Violation(gpucore.ErrOutOfRange,
			"map mode %v on staging %q with access %v", mode, g.label, g.access)
	}

	var wait uint64
	if mode&MapRead != 0 && completed < e.readFence {
		wait = max(wait, uint64(e.readFence-completed))
	}
	if mode&MapWrite != 0 && completed < e.writeFence {
		wait = max(wait, uint64(e.writeFence-completed))
	}
	if wait > 0 {
		return MapResult{Status: Busy, Wait: wait}, nil
	}

	e.mapped = true
	return MapResult{
		Status:     Ready,
		Data:       e.data,
		RowPitch:   e.rowPitch,
		DepthPitch: e.depthPitch,
	}, nil
}

// Unmap ends the CPU access to sub. Fences are kept: they still gate the
// next GPU use.
func (g *Guard) Unmap(sub int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.entry(sub)
	if err != nil {
		return err
	}
	if !e.mapped {
		return gpucore.Violation(gpucore.ErrNotMapped, "unmap of staging %q subresource %d", g.label, sub)
	}
	e.mapped = false
	return nil
}

// Close destroys the staging buffers. Call it only once no batch uses them.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	for _, e := range g.entries {
		g.factory.DestroyBuffer(e.buffer)
	}
	g.entries = nil
}
