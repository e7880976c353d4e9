package home

import (
	"time"

	"github.com/nerrad567/gray-logic-home/internal/automation"
	"github.com/nerrad567/gray-logic-home/internal/capability"
)

// SystemState is the home's security/presence state.
type SystemState = automation.SystemState

// Door values.
const (
	DoorOpen   = "OPEN"
	DoorClosed = "CLOSED"
)

// State is the orchestrator's live state. It is owned by the dispatcher
// goroutine; nothing else reads or writes it.
type State struct {
	System          SystemState
	DoNotDisturb    bool
	Thermostats     map[string]capability.ThermostatReading
	Presence        []string
	Activity        string
	LastDoorbell    time.Time
	HasNotification bool
}

// loopReadings exposes State to the resolver.
type loopReadings struct {
	s *State
}

func (r loopReadings) ThermostatReading(id string) (capability.ThermostatReading, bool) {
	t, ok := r.s.Thermostats[id]
	return t, ok
}

func (r loopReadings) DoNotDisturb() bool {
	return r.s.DoNotDisturb
}

// Snapshot is a copy of the live state for callers outside the loop.
type Snapshot struct {
	SystemState   SystemState                             `json:"systemState"`
	ArmingPending bool                                    `json:"armingPending"`
	DoNotDisturb  bool                                    `json:"doNotDisturb"`
	Thermostats   map[string]capability.ThermostatReading `json:"thermostats,omitempty"`
	Presence      []string                                `json:"presence"`
	Activity      string                                  `json:"activity,omitempty"`
	LastDoorbell  *time.Time                              `json:"lastDoorbell,omitempty"`
	Doors         map[string]string                       `json:"doors"`
	ConfigVersion uint64                                  `json:"configVersion"`
}
