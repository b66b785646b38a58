package gpucore

import "github.com/cockroachdb/errors"

// Error classes. Every error returned by the core is marked with exactly one
// of these. Test with errors.Is from github.com/cockroachdb/errors, which
// understands marks.
var (
	// ErrContractViolation marks programmer errors: non-monotonic sequence or
	// encoder ids, mapping an already mapped entry, unknown handles, use of a
	// released allocation. They are never retryable.
	ErrContractViolation = errors.New("gpures: contract violation")

	// ErrConstruction marks failures of the physical factory (unsupported
	// reinterpretation, out of memory). The core does not retry them.
	ErrConstruction = errors.New("gpures: construction failed")
)

// Specific contract violations, all marked ErrContractViolation as well.
var (
	// ErrStaleSequence is returned when a sequence id lower than one already
	// observed is passed for the same stream.
	ErrStaleSequence = errors.New("gpures: sequence id went backwards")

	// ErrStaleEncoder is returned when an encoder id lower than the last one
	// recorded for a residency record is requested.
	ErrStaleEncoder = errors.New("gpures: encoder id went backwards")

	// ErrAlreadyMapped is returned when mapping or GPU-using a mapped entry.
	ErrAlreadyMapped = errors.New("gpures: subresource is mapped")

	// ErrNotMapped is returned when unmapping an entry that is not mapped.
	ErrNotMapped = errors.New("gpures: subresource is not mapped")

	// ErrUnknownView is returned for a view key that was never created.
	ErrUnknownView = errors.New("gpures: unknown view key")

	// ErrReleased is returned when using an allocation after its last release.
	ErrReleased = errors.New("gpures: allocation has been released")

	// ErrUnknownCounter is returned for counter handles that are out of range
	// or in the wrong state for the operation.
	ErrUnknownCounter = errors.New("gpures: invalid counter handle")

	// ErrOutOfRange is returned for subresource indexes past the end.
	ErrOutOfRange = errors.New("gpures: subresource out of range")
)

// Violation builds a contract violation of the given kind. The result
// satisfies errors.Is(err, kind), errors.Is(err, ErrContractViolation) and
// errors.HasAssertionFailure(err).
func Violation(kind error, format string, args ...any) error {
	err := errors.AssertionFailedf(format, args...)
	err = errors.Mark(err, kind)
	return errors.Mark(err, ErrContractViolation)
}

// ConstructionFailed wraps a factory error. A nil cause yields nil.
func ConstructionFailed(cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(cause, format, args...), ErrConstruction)
}

// IsContractViolation reports whether err is a contract violation.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrContractViolation)
}
