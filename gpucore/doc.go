// Package gpucore defines the shared vocabulary of the resource core: opaque
// physical resource IDs, sequence ids, view descriptors, the collaborator
// interfaces the core consumes from the native driver bridge, and the error
// taxonomy every other package reports through.
//
// # Architecture
//
// The core never talks to a GPU API directly. It consumes three collaborators:
//
//	               +-------------------------------+
//	               |  resource / counter / staging |
//	               |          / residency          |
//	               +---------------+---------------+
//	                               |
//	     +-------------------------+-------------------------+
//	     |                         |                         |
//	+----v-----------+    +--------v--------+    +-----------v----+
//	| SequenceClock  |    | PhysicalFactory |    |    Encoder     |
//	| Next/Completed |    | textures, views |    | residency/fill |
//	+----------------+    +-----------------+    +----------------+
//
// backend/native implements all three on top of the gogpu/wgpu HAL.
//
// # Resource Management
//
// Physical resources are referred to by opaque IDs ([TextureID], [BufferID],
// [ViewID]). Factories are responsible for tracking the mapping between IDs
// and actual GPU objects, the same way a HAL adapter would.
//
// # Errors
//
// Three kinds of failure are distinguished:
//
//   - Contract violations (non-monotonic sequence ids or encoder ids, double
//     map, unknown handles): marked [ErrContractViolation]. They are never
//     retryable and errors.HasAssertionFailure reports true for them.
//   - Construction failures from the factory: marked [ErrConstruction].
//   - Busy conditions: reported as a status by staging maps, never as an error.
package gpucore
