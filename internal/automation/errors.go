package automation

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-home/internal/capability"
)

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrCommandNotFound) {
//	    // report an error result
//	}
var (
	// ErrCommandNotFound is returned when a command name is not configured.
	ErrCommandNotFound = errors.New("automation: command not found")

	// ErrSceneNotFound marks a light scene that fell back to the default.
	// It is recorded on degraded outcomes and never returned by Resolve.
	ErrSceneNotFound = errors.New("automation: light scene not found")

	// ErrRecursionLimit is returned when commands dispatched by other
	// commands nest deeper than MaxDepth.
	ErrRecursionLimit = errors.New("automation: command recursion limit reached")

	// ErrInvalidConfig is returned when the home configuration document
	// cannot be parsed at all.
	ErrInvalidConfig = errors.New("automation: invalid configuration")

	// ErrInvalidAction is returned when an action entry fails validation.
	ErrInvalidAction = errors.New("automation: invalid action")

	// ErrInvalidState is returned for a system state name that is not
	// HOME, AWAY or ARMED.
	ErrInvalidState = errors.New("automation: invalid system state")

	// ErrNoConfig is returned when resolving before any configuration
	// has been loaded.
	ErrNoConfig = errors.New("automation: no configuration loaded")
)

// LookupError reports a failed configuration lookup for Name.
type LookupError struct {
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// AdapterError is a failure returned (or panicked) by an adapter call.
type AdapterError struct {
	Kind capability.Kind
	Err  error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter: %v", e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
