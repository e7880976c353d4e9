package capability

import (
	"encoding/json"
	"time"
)

// Generic event names. Kind-specific fatal names live in DefaultFatalEvents.
const (
	EventReady  = "ready"
	EventChange = "change"
	EventError  = "error"
	EventFatal  = "fatal"
)

// Event is published by an adapter.
//
// Change events carry one of the typed payloads below.
type Event struct {
	Kind    Kind
	Name    string
	Payload any
	Err     error
	At      time.Time
}

// EmitFunc receives adapter events.
type EmitFunc func(Event)

// ThermostatReading is one thermostat's last reported state. Bridges that
// leave ID empty have it filled from the state topic.
type ThermostatReading struct {
	ID          string  `json:"id"`
	Mode        string  `json:"mode"`
	Target      float64 `json:"target"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity,omitempty"`
}

// NodeEvent is a mesh node's basic event (door contacts, motion sensors).
type NodeEvent struct {
	Node  string `json:"node"`
	Value int    `json:"value"`
}

// NodeValue is a mesh node's reported measurement.
type NodeValue struct {
	Node    string `json:"node"`
	ValueID string `json:"value_id"`
	Value   any    `json:"value"`
}

// PresenceUpdate lists who is currently present.
type PresenceUpdate struct {
	Present []string `json:"present"`
}

// SensorToggle is a virtual switch on the lighting bridge.
type SensorToggle struct {
	Name string `json:"name"`
	On   bool   `json:"on"`
}

// ActivityUpdate reports the activity hub's current activity.
type ActivityUpdate struct {
	Activity string `json:"activity"`
}

// DeviceState is a bridge's full view of its devices, passed through as
// published.
type DeviceState struct {
	Data json.RawMessage
}

// MeshNode is one node of the sensor/actuator mesh.
type MeshNode struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Location     string `json:"location,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Product      string `json:"product,omitempty"`
	Type         string `json:"type,omitempty"`
	Ready        bool   `json:"ready"`
}

// NodeInventory lists every node the mesh controller knows.
type NodeInventory struct {
	Nodes []MeshNode `json:"nodes"`
}
