package gpucore

import "github.com/gogpu/gputypes"

// SequenceClock issues sequence ids for submitted batches and reports how far
// the GPU has progressed.
//
// Implementations must be safe for concurrent use: Completed is typically
// polled from the submission goroutine while completion notifications advance
// it from another.
type SequenceClock interface {
	// Next allocates the sequence id of the next batch to be submitted.
	// Returned values are strictly increasing.
	Next() SequenceID

	// Completed returns the highest sequence id known to be finished.
	Completed() SequenceID
}

// PhysicalFactory creates and destroys physical GPU objects.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while the GPU still uses it is undefined behavior;
//     callers defer destruction until the owning batch completed
//   - IDs become invalid after destruction and are never reused
type PhysicalFactory interface {
	// CreateTexture creates a physical texture.
	CreateTexture(desc TextureDesc) (TextureID, error)

	// DestroyTexture releases a physical texture.
	DestroyTexture(id TextureID)

	// CreateBuffer creates a physical buffer.
	CreateBuffer(desc BufferDesc) (BufferID, error)

	// DestroyBuffer releases a physical buffer.
	DestroyBuffer(id BufferID)

	// MapBuffer returns the CPU-visible bytes of a host-visible buffer.
	// The slice stays valid until the buffer is destroyed.
	MapBuffer(id BufferID) ([]byte, error)

	// CreateView builds a view of a texture. It fails for reinterpretations
	// the driver does not support.
	CreateView(texture TextureID, desc ViewDescriptor) (ViewID, error)

	// DestroyView releases a view.
	DestroyView(id ViewID)
}

// Encoder records commands into the batch currently being built.
//
// The encoder is owned by the submission goroutine and is not required to
// be safe for concurrent use.
type Encoder interface {
	// DeclareResidency tells the driver that h is accessed by the following
	// commands of this encoder. Declarations are not additive: the latest
	// call for a handle replaces the previous one.
	DeclareResidency(h Handle, access Access, stages gputypes.ShaderStage)

	// EmitFill writes value repeatedly over [offset, offset+size) of buffer.
	// size is a multiple of 4.
	EmitFill(buffer BufferID, offset, size uint64, value uint32)
}
