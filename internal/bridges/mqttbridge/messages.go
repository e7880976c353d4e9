package mqttbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/capability"
)

// CommandMessage is sent from Core to a bridge.
// Topic: graylogic/command/{kind}/{target}
type CommandMessage struct {
	// ID correlates the command with the bridge's logs.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// Command is the operation name (e.g. "set_state", "play").
	Command string `json:"command"`

	// Parameters holds command-specific values, e.g. {"on": true, "bri": 254}.
	Parameters map[string]any `json:"parameters,omitempty"`

	Source string `json:"source"`
}

// HealthStatus is a bridge's operational status.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthStarting  HealthStatus = "starting"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthOffline   HealthStatus = "offline"
	HealthStopping  HealthStatus = "stopping"
)

// HealthMessage is published (retained) by a bridge.
// Topic: graylogic/health/{kind}
type HealthMessage struct {
	Bridge    string       `json:"bridge"`
	Timestamp time.Time    `json:"timestamp"`
	Status    HealthStatus `json:"status"`

	// Event is a bridge-specific event name (e.g. "no_hubs_found"). When
	// set it takes precedence over Status.
	Event string `json:"event,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// eventName maps a health message to a capability event name.
func (m HealthMessage) eventName() string {
	if m.Event != "" {
		return m.Event
	}
	switch m.Status {
	case HealthHealthy, HealthStarting:
		return capability.EventReady
	case HealthOffline:
		return capability.EventFatal
	default:
		return capability.EventError
	}
}

// State message types.
const (
	StateThermostat = "thermostat"
	StateNodeEvent  = "node_event"
	StateNodeValue  = "node_value"
	StatePresence   = "presence"
	StateToggle     = "toggle"
	StateActivity   = "activity"
	StateDevices    = "devices"
	StateNodes      = "nodes"
)

// StateMessage is published by a bridge when something it observes changes.
// Topic: graylogic/state/{kind}/{id}
type StateMessage struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	State     json.RawMessage `json:"state"`
}

var stateDecoders = map[string]func(json.RawMessage) (any, error){
	StateThermostat: decodeAs[capability.ThermostatReading],
	StateNodeEvent:  decodeAs[capability.NodeEvent],
	StateNodeValue:  decodeAs[capability.NodeValue],
	StatePresence:   decodeAs[capability.PresenceUpdate],
	StateToggle:     decodeAs[capability.SensorToggle],
	StateActivity:   decodeAs[capability.ActivityUpdate],
	StateDevices:    decodeDevices,
	StateNodes:      decodeAs[capability.NodeInventory],
}

// decodeDevices keeps the bridge's device document as published.
func decodeDevices(raw json.RawMessage) (any, error) {
	if !json.Valid(raw) {
		return nil, errors.New("device state is not a JSON document")
	}
	return capability.DeviceState{Data: append(json.RawMessage(nil), raw...)}, nil
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// payload decodes State into the typed change payload for m.Type.
func (m StateMessage) payload() (any, error) {
	decode, ok := stateDecoders[m.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStateType, m.Type)
	}
	v, err := decode(m.State)
	if err != nil {
		return nil, fmt.Errorf("decoding %s state: %w", m.Type, err)
	}
	return v, nil
}
