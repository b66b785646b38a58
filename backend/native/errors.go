package native

import "github.com/cockroachdb/errors"

// Package errors for the HAL bridge.
var (
	// ErrNilHALDevice is returned when the bridge is built without a HAL device.
	ErrNilHALDevice = errors.New("native: HAL device is nil")

	// ErrNilHALQueue is returned when the bridge is built without a HAL queue.
	ErrNilHALQueue = errors.New("native: HAL queue is nil")

	// ErrNoHALProvider is returned when a device provider exposes no HAL types.
	ErrNoHALProvider = errors.New("native: provider does not expose HAL types")

	// ErrUnknownHandle is returned for ids the factory never issued or has
	// already destroyed.
	ErrUnknownHandle = errors.New("native: unknown resource handle")

	// ErrUnsupportedViewKind is returned for view kinds WebGPU cannot express
	// (1D arrays, buffer views).
	ErrUnsupportedViewKind = errors.New("native: view kind has no WebGPU dimension")

	// ErrEncoderFinished is returned when recording into a finished encoder.
	ErrEncoderFinished = errors.New("native: encoder already finished")
)
