package gpures

import (
	"log/slog"
	"time"

	"github.com/gogpu/gpures/counter"
	"github.com/gogpu/gpures/resource"
)

// Option configures a Device during creation.
//
// Example:
//
//	dev, err := gpures.NewDevice(factory, clock,
//	    gpures.WithRenameCapacity(4),
//	    gpures.WithCounterBlockSlots(1024),
//	)
type Option func(*options)

// options holds optional configuration for Device creation.
type options struct {
	renameCapacity    int
	counterBlockSlots int
	pollInterval      time.Duration
	logger            *slog.Logger
	backend           string
}

// defaultOptions returns the default device options.
func defaultOptions() options {
	return options{
		renameCapacity:    resource.DefaultPoolCapacity,
		counterBlockSlots: counter.DefaultBlockSlots,
		pollInterval:      time.Millisecond,
	}
}

// WithRenameCapacity sets the renaming pool capacity of dynamic buffers: the
// number of discards per frame served without reusing an allocation that
// may still be in flight. Values outside [1, 16] are clamped.
func WithRenameCapacity(n int) Option {
	return func(o *options) {
		o.renameCapacity = n
	}
}

// WithCounterBlockSlots sets how many counters each counter buffer holds.
func WithCounterBlockSlots(n int) Option {
	return func(o *options) {
		o.counterBlockSlots = n
	}
}

// WithPollInterval sets how often MapWait polls a clock that cannot notify
// completion itself.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithLogger installs l as the package logger, like SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBackend makes OpenDevice use the named backend instead of the best
// available one.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}
