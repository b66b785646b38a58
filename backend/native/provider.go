package native

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpures/internal/logging"
)

// halProvider is implemented by hosts that expose their HAL objects
// directly (gogpu does).
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider builds a Factory and a Clock sharing the GPU device of a
// host application. The provider must either expose HalDevice/HalQueue or
// return hal types from Device/Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Factory, *Clock, error) {
	if provider == nil {
		return nil, nil, ErrNoHALProvider
	}

	var device hal.Device
	var queue hal.Queue
	if hp, ok := provider.(halProvider); ok {
		device, _ = hp.HalDevice().(hal.Device)
		queue, _ = hp.HalQueue().(hal.Queue)
	} else {
		device, _ = provider.Device().(hal.Device)
		queue, _ = provider.Queue().(hal.Queue)
	}
	if device == nil || queue == nil {
		return nil, nil, ErrNoHALProvider
	}

	f, err := NewFactory(device)
	if err != nil {
		return nil, nil, err
	}
	c, err := NewClock(queue)
	if err != nil {
		return nil, nil, err
	}
	info := provider.AdapterInfo()
	logging.Logger().Info("native: using host device",
		"adapter", info.Name, "type", info.Type.String())
	return f, c, nil
}
