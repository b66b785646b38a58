package backend

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gpures/gpucore"
)

// Backend names.
const (
	// Native is the wgpu HAL backend in backend/native.
	Native = "native"
)

// ErrBackendNotAvailable is returned when a requested backend is not
// registered or none can be opened.
var ErrBackendNotAvailable = errors.New("backend: not available")

// Backend is an opened driver: the physical factory resources are created
// through and the clock of the queue their work is submitted to.
type Backend struct {
	// Name is the registry name the backend was opened under.
	Name string

	Factory gpucore.PhysicalFactory
	Clock   gpucore.SequenceClock
}

// Opener opens a backend on the device of a host application.
type Opener func(provider gpucontext.DeviceProvider) (*Backend, error)
