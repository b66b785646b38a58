package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Resource IDs
//
// These opaque IDs represent physical GPU resources. Each factory
// implementation maintains a mapping between IDs and actual backend objects.

// TextureID is an opaque handle to a physical texture.
type TextureID uint64

// BufferID is an opaque handle to a physical buffer.
type BufferID uint64

// ViewID is an opaque handle to a texture view.
type ViewID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// SequenceID identifies one submitted batch of GPU work.
// Sequence ids are totally ordered; zero means "never used by the GPU".
type SequenceID uint64

// HandleKind tells which ID space a Handle refers to.
type HandleKind uint8

const (
	// HandleTexture refers to a TextureID.
	HandleTexture HandleKind = iota + 1
	// HandleBuffer refers to a BufferID.
	HandleBuffer
	// HandleView refers to a ViewID.
	HandleView
)

// Handle names any physical object a residency declaration can target.
type Handle struct {
	Kind HandleKind
	ID   uint64
}

// TextureHandle returns the Handle of a texture.
func TextureHandle(id TextureID) Handle { return Handle{Kind: HandleTexture, ID: uint64(id)} }

// BufferHandle returns the Handle of a buffer.
func BufferHandle(id BufferID) Handle { return Handle{Kind: HandleBuffer, ID: uint64(id)} }

// ViewHandle returns the Handle of a view.
func ViewHandle(id ViewID) Handle { return Handle{Kind: HandleView, ID: uint64(id)} }

// String returns a short debug form such as "view#12".
func (h Handle) String() string {
	switch h.Kind {
	case HandleTexture:
		return fmt.Sprintf("texture#%d", h.ID)
	case HandleBuffer:
		return fmt.Sprintf("buffer#%d", h.ID)
	case HandleView:
		return fmt.Sprintf("view#%d", h.ID)
	default:
		return fmt.Sprintf("invalid#%d", h.ID)
	}
}

// Access is the access kind of a residency declaration.
type Access uint8

// Access flags.
const (
	AccessRead Access = 1 << iota
	AccessWrite

	AccessNone Access = 0
)

// String returns "Read", "Write", "Read|Write" or "None".
func (a Access) String() string {
	switch a {
	case AccessNone:
		return "None"
	case AccessRead:
		return "Read"
	case AccessWrite:
		return "Write"
	case AccessRead | AccessWrite:
		return "Read|Write"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// ViewKind is the dimensionality of a view as the legacy API sees it.
// The target API distinguishes single-layer and arrayed views even when the
// logical shape is identical, so both variants are kept apart here.
type ViewKind uint8

const (
	ViewKind1D ViewKind = iota + 1
	ViewKind1DArray
	ViewKind2D
	ViewKind2DArray
	ViewKind2DMS
	ViewKind2DMSArray
	ViewKind3D
	ViewKindCube
	ViewKindCubeArray
	ViewKindBuffer
)

var viewKindNames = [...]string{
	ViewKind1D:        "1D",
	ViewKind1DArray:   "1DArray",
	ViewKind2D:        "2D",
	ViewKind2DArray:   "2DArray",
	ViewKind2DMS:      "2DMS",
	ViewKind2DMSArray: "2DMSArray",
	ViewKind3D:        "3D",
	ViewKindCube:      "Cube",
	ViewKindCubeArray: "CubeArray",
	ViewKindBuffer:    "Buffer",
}

// String returns the kind name.
func (k ViewKind) String() string {
	if int(k) < len(viewKindNames) && viewKindNames[k] != "" {
		return viewKindNames[k]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(k))
}

// IsArray reports whether the kind is an arrayed view type.
func (k ViewKind) IsArray() bool {
	switch k {
	case ViewKind1DArray, ViewKind2DArray, ViewKind2DMSArray, ViewKindCubeArray:
		return true
	}
	return false
}

// ArrayDual returns the arrayed/non-arrayed counterpart of k.
// ok is false for kinds that have no counterpart (3D, Buffer).
func (k ViewKind) ArrayDual() (dual ViewKind, ok bool) {
	switch k {
	case ViewKind1D:
		return ViewKind1DArray, true
	case ViewKind1DArray:
		return ViewKind1D, true
	case ViewKind2D:
		return ViewKind2DArray, true
	case ViewKind2DArray:
		return ViewKind2D, true
	case ViewKind2DMS:
		return ViewKind2DMSArray, true
	case ViewKind2DMSArray:
		return ViewKind2DMS, true
	case ViewKindCube:
		return ViewKindCubeArray, true
	case ViewKindCubeArray:
		return ViewKindCube, true
	}
	return k, false
}

// Dimension maps the kind to the WebGPU view dimension.
// 1D arrays and buffer views have no WebGPU equivalent and map to
// TextureViewDimensionUndefined.
func (k ViewKind) Dimension() gputypes.TextureViewDimension {
	switch k {
	case ViewKind1D:
		return gputypes.TextureViewDimension1D
	case ViewKind2D, ViewKind2DMS:
		return gputypes.TextureViewDimension2D
	case ViewKind2DArray, ViewKind2DMSArray:
		return gputypes.TextureViewDimension2DArray
	case ViewKind3D:
		return gputypes.TextureViewDimension3D
	case ViewKindCube:
		return gputypes.TextureViewDimensionCube
	case ViewKindCubeArray:
		return gputypes.TextureViewDimensionCubeArray
	default:
		return gputypes.TextureViewDimensionUndefined
	}
}

// ViewDescriptor is the structural key of a view. Two descriptors with equal
// fields describe the same view; compare them with ==.
type ViewDescriptor struct {
	Format     gputypes.TextureFormat
	Kind       ViewKind
	FirstMip   uint32
	MipCount   uint32
	FirstSlice uint32
	SliceCount uint32
}

// String returns a compact debug form of the descriptor.
func (d ViewDescriptor) String() string {
	return fmt.Sprintf("%s %s mips[%d+%d] slices[%d+%d]",
		d.Kind, d.Format, d.FirstMip, d.MipCount, d.FirstSlice, d.SliceCount)
}

// TextureDesc describes a physical texture to create.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	Width  uint32
	Height uint32

	// DepthOrArrayLayers is the depth of a 3D texture or the array layer count.
	DepthOrArrayLayers uint32

	// MipLevelCount is the number of mip levels (1+).
	MipLevelCount uint32

	// SampleCount is 1 for non-multisampled textures.
	SampleCount uint32

	Dimension gputypes.TextureDimension
	Format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage

	// ViewFormats lists the formats views may reinterpret the texture as.
	ViewFormats []gputypes.TextureFormat
}

// BufferDesc describes a physical buffer to create.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size in bytes.
	Size uint64

	Usage gputypes.BufferUsage

	// HostVisible requests CPU-visible memory that stays mapped for the
	// lifetime of the buffer.
	HostVisible bool
}
