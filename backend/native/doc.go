// Package native implements the gpures collaborators on top of the
// gogpu/wgpu hardware abstraction layer.
//
// Factory creates textures, buffers and views through a hal.Device and
// hands out small integer handles for them. Clock issues sequence ids and
// maps them to HAL submission indexes, so completion is read from
// hal.Queue.PollCompleted. Encoder records residency declarations as
// texture and buffer barriers and counter seeds as buffer clears.
//
//	factory, clock, err := native.NewFromProvider(provider)
//	enc, err := native.NewEncoder(factory, clock, "frame")
//	...
//	cmd, err := enc.Finish()
//	clock.Submit(seq, cmd)
//
// Any HAL backend works, including hal/noop for tests.
package native
