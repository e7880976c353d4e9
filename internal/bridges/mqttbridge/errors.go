package mqttbridge

import "errors"

// Domain-specific errors for the MQTT bridge adapters.
var (
	// ErrNotConnected is returned by a factory when the broker connection
	// is down. The kind stays unavailable until the next Init.
	ErrNotConnected = errors.New("mqttbridge: mqtt not connected")

	// ErrUnknownKind is returned for a capability kind with no adapter.
	ErrUnknownKind = errors.New("mqttbridge: unknown capability kind")

	// ErrUnknownStateType is returned for a state message whose type has
	// no decoder.
	ErrUnknownStateType = errors.New("mqttbridge: unknown state type")

	// ErrClosed is returned by commands sent after Close.
	ErrClosed = errors.New("mqttbridge: adapter closed")

	// ErrNoThermostatID is returned by SetTarget for a setting without a
	// thermostat id.
	ErrNoThermostatID = errors.New("mqttbridge: thermostat id required")
)
