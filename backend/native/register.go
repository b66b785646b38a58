package native

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gpures/backend"
)

func init() {
	backend.Register(backend.Native, open)
}

func open(provider gpucontext.DeviceProvider) (*backend.Backend, error) {
	f, c, err := NewFromProvider(provider)
	if err != nil {
		return nil, err
	}
	return &backend.Backend{Name: backend.Native, Factory: f, Clock: c}, nil
}
