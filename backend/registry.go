package backend

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	openers    = make(map[string]Opener)
	// Priority order for backend selection (first that opens wins).
	backendPriority = []string{Native}
)

// Register registers a backend opener with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	openers[name] = open
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(openers, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := openers[name]
	return ok
}

// Open opens the backend registered under name.
func Open(name string, provider gpucontext.DeviceProvider) (*Backend, error) {
	registryMu.RLock()
	open, ok := openers[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrBackendNotAvailable, "backend %q", name)
	}
	b, err := open(provider)
	if err != nil {
		return nil, errors.Wrapf(err, "open backend %q", name)
	}
	b.Name = name
	return b, nil
}

// Default opens the best available backend. Backends in priority order are
// tried first, then the rest by name. When none opens, the error carries
// every failure.
func Default(provider gpucontext.DeviceProvider) (*Backend, error) {
	var errs error
	for _, name := range order() {
		b, err := Open(name, provider)
		if err == nil {
			return b, nil
		}
		errs = errors.CombineErrors(errs, err)
	}
	if errs == nil {
		return nil, ErrBackendNotAvailable
	}
	return nil, errors.Mark(errs, ErrBackendNotAvailable)
}

func order() []string {
	names := Available()
	out := make([]string, 0, len(names))
	for _, name := range backendPriority {
		if slices.Contains(names, name) {
			out = append(out, name)
		}
	}
	for _, name := range names {
		if !slices.Contains(backendPriority, name) {
			out = append(out, name)
		}
	}
	return out
}
