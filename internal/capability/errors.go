package capability

import "errors"

// Domain errors for capability supervision.
var (
	// ErrUnavailable is returned when a capability is not ready.
	ErrUnavailable = errors.New("capability: unavailable")

	// ErrNotRegistered is returned for a kind with no registration.
	ErrNotRegistered = errors.New("capability: not registered")

	// ErrAlreadyRegistered is returned when a kind is registered twice.
	ErrAlreadyRegistered = errors.New("capability: already registered")

	// ErrAlreadyInitialised is returned when Init is called for a kind that
	// has already been constructed in this process.
	ErrAlreadyInitialised = errors.New("capability: already initialised")

	// ErrUnsupported is returned when an adapter does not implement the
	// interface its kind requires.
	ErrUnsupported = errors.New("capability: adapter does not support operation")
)
