// Package backend selects the driver a gpures Device runs on.
//
// Driver packages register an Opener from init() and are selected at
// runtime by name. The wgpu HAL backend registers itself on import:
//
//	import _ "github.com/gogpu/gpures/backend/native"
//
// # Backend Selection
//
// Use Default to open the best available backend, or Open to request a
// specific backend by name:
//
//	b, err := backend.Default(provider)
//
//	// Or request a specific backend
//	b, err := backend.Open(backend.Native, provider)
//
// gpures.OpenDevice wraps both.
package backend
