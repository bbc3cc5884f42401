package shadow

import "errors"

// Domain-specific errors for shadow synchronization.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoConnection is returned when an operation requires a live
	// transport handle and none is attached.
	ErrNoConnection = errors.New("shadow: no live connection handle")

	// ErrUpdateTimeout is the cause carried by a timed-out update result.
	// The in-flight transport request is not cancelled; a late response is
	// simply dropped by the correlation registry.
	ErrUpdateTimeout = errors.New("shadow: update not acknowledged before deadline")

	// ErrUpdateRejected is returned when the remote rejects a desired-state
	// update or snapshot request.
	ErrUpdateRejected = errors.New("shadow: request rejected by remote")

	// ErrMalformedDocument is returned when a value cannot be represented
	// as a scalar, sequence, or nested document.
	ErrMalformedDocument = errors.New("shadow: malformed document value")

	// ErrClosed is returned when submitting to a closed device.
	ErrClosed = errors.New("shadow: device closed")
)
