// Package gpures is the resource core of a translation layer that runs a
// synchronous map/discard graphics API on an asynchronous, view-based GPU
// API.
//
// # Overview
//
// For every resource access the core decides whether a cached view can be
// reused, whether a CPU map must wait and for how many batches, whether a
// write must go to a fresh physical allocation, and whether a residency
// declaration has to be emitted for the current encoder. It never waits on
// the GPU itself: waiting is left to callers (see Clock.WaitFor and
// Device.MapWait).
//
// # Quick Start
//
//	factory, clock, err := native.NewFromProvider(provider)
//	dev, err := gpures.NewDevice(factory, clock)
//
//	vb, err := dev.NewDynamicBuffer(gpucore.BufferDesc{Size: 64 << 10, HostVisible: true})
//	seq := clock.Next()
//	cur, err := dev.Discard(vb, frame, seq)
//	copy(cur.Mapped(), vertices)
//
//	dev.Poll() // after completion: frees retired allocations and counters
//
// OpenDevice does the first two steps through the backend registry:
//
//	import _ "github.com/gogpu/gpures/backend/native"
//
//	dev, err := gpures.OpenDevice(provider)
//
// # Packages
//
//   - resource: logical resources, allocations, lazy views, renaming pools
//   - counter: GPU counter slots with deferred seeding and safe reclaim
//   - staging: dual-fence CPU map guard
//   - residency: per-encoder residency declaration dedup
//   - backend: registry of drivers a Device can open
//   - backend/native: collaborators over the gogpu/wgpu HAL
//
// # Errors
//
// Errors are built with github.com/cockroachdb/errors. Contract violations
// (sequence ids going backwards, double maps, released allocations) are
// marked gpucore.ErrContractViolation; factory failures are marked
// gpucore.ErrConstruction. Busy maps are a status, not an error.
//
// # Logging
//
// gpures is silent by default. SetLogger installs a *slog.Logger for every
// sub-package and the wgpu HAL.
package gpures
