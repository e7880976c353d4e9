package home

import "errors"

// Domain errors for the home package.
var (
	// ErrStopped is returned by trigger methods once Run has returned.
	ErrStopped = errors.New("home: orchestrator stopped")

	// ErrTaskFailed is returned when a trigger's work panicked on the
	// dispatcher.
	ErrTaskFailed = errors.New("home: dispatcher task failed")

	// ErrKeyNotBound is returned for a keypad key with no command.
	ErrKeyNotBound = errors.New("home: keypad key not bound")
)

// ErrInvalidDoorValue is returned for a door value other than OPEN or CLOSED.
var ErrInvalidDoorValue = errors.New("home: door value must be OPEN or CLOSED")
