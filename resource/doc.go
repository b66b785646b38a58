// Package resource implements logical GPU resources whose physical backing
// can be renamed.
//
// A Logical resource owns an append-only list of view descriptors and a
// pointer to its current Allocation. Views are built lazily per allocation:
// an allocation records how many descriptors it has caught up with, and
// ResolveView builds the missing ones in order before returning the
// requested view. A ViewKey therefore stays valid across renames.
//
//	res, _ := resource.NewBuffer(factory, desc)
//	pool := resource.NewRenamingPool(res, resource.PoolConfig{})
//	old, _ := pool.Discard(frame)
//	releases.Defer(clock.Next(), old)
//
// Renamed-out allocations are handed to a ReleaseQueue and destroyed once
// the sequence that last used them has completed.
package resource
