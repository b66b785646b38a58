package gpures

import (
	"log/slog"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpures/internal/logging"
)

// SetLogger configures the logger for gpures and all its sub-packages.
// By default, gpures produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior). The logger
// is also handed to the wgpu HAL so driver diagnostics end up in the same
// place.
//
// Log levels used by gpures:
//   - [slog.LevelDebug]: view construction, renames, counter blocks, reclaims
//   - [slog.LevelInfo]: lifecycle events (host device adopted)
//   - [slog.LevelWarn]: non-fatal issues (dropped encoder commands, release errors)
//
// Example:
//
//	gpures.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
	hal.SetLogger(logging.Logger())
}

// Logger returns the current logger used by gpures.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
