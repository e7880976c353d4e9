package automation

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/capability"
)

// SystemState is the home's security/presence state.
type SystemState string

// System states.
const (
	StateHome  SystemState = "HOME"
	StateAway  SystemState = "AWAY"
	StateArmed SystemState = "ARMED"
)

// Valid reports whether s is a known state.
func (s SystemState) Valid() bool {
	return s == StateHome || s == StateAway || s == StateArmed
}

// Away reports whether nobody is expected home (AWAY or ARMED).
func (s SystemState) Away() bool {
	return s == StateAway || s == StateArmed
}

// ParseSystemState parses a state name case-insensitively.
func ParseSystemState(name string) (SystemState, error) {
	s := SystemState(strings.ToUpper(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, name)
	}
	return s, nil
}

// KindSystem groups outcomes of sub-actions handled by the orchestrator
// itself rather than an adapter.
const KindSystem capability.Kind = "system"

// Modifiers with built-in meaning.
const (
	ModifierOff  = "OFF"
	ModifierUp   = "UP"
	ModifierDown = "DOWN"
)

// SubAction is one typed step of a Plan. The set of implementations is
// closed; Engine switches over it exhaustively.
type SubAction interface {
	// Kind is the capability the sub-action needs, or KindSystem.
	Kind() capability.Kind

	// Name is the action type as written in configuration.
	Name() string

	subAction()
}

// SetState changes the system state.
type SetState struct {
	State SystemState `json:"state"`
}

// SetLightScene applies a light scene to a list of groups.
type SetLightScene struct {
	Lights []string              `json:"lights"`
	Scene  string                `json:"scene"`
	State  capability.LightState `json:"state"`

	// Degraded is set when Scene was not configured and the default
	// scene is applied instead.
	Degraded bool `json:"degraded,omitempty"`
}

// ActivateBridgeScene activates a scene stored on the lighting bridge.
type ActivateBridgeScene struct {
	Group string `json:"group"`
	Scene string `json:"scene"`
}

// SetBinaryOutputs switches mesh outputs by node id.
type SetBinaryOutputs struct {
	Outputs map[string]bool `json:"outputs"`
}

// ThermostatAdjust changes one thermostat's target and/or mode. The
// thermostat is Setting.ThermostatID.
type ThermostatAdjust struct {
	Setting capability.ThermostatSetting `json:"setting"`
}

// ActivateActivity starts an activity on the AV hub.
type ActivateActivity struct {
	Activity string `json:"activity"`
}

// SendDeviceCommand sends a raw command to a device through the AV hub.
type SendDeviceCommand struct {
	Device  string `json:"device"`
	Command string `json:"command"`
}

// SetCameraEnabled turns camera recording on or off.
type SetCameraEnabled struct {
	Enabled bool `json:"enabled"`
}

// PlaySound plays a sound file. Skipped under do-not-disturb unless Force.
type PlaySound struct {
	Sound string `json:"sound"`
	Force bool   `json:"force,omitempty"`
}

// SetDoNotDisturb toggles do-not-disturb.
type SetDoNotDisturb struct {
	Enabled bool `json:"enabled"`
}

// MeshAdmin runs an administrative operation on the sensor mesh.
type MeshAdmin struct {
	Operation string `json:"operation"`
}

func (SetState) Kind() capability.Kind            { return KindSystem }
func (SetLightScene) Kind() capability.Kind       { return capability.Lighting }
func (ActivateBridgeScene) Kind() capability.Kind { return capability.Lighting }
func (SetBinaryOutputs) Kind() capability.Kind    { return capability.BinaryMesh }
func (ThermostatAdjust) Kind() capability.Kind    { return capability.Thermostat }
func (ActivateActivity) Kind() capability.Kind    { return capability.ActivityHub }
func (SendDeviceCommand) Kind() capability.Kind   { return capability.ActivityHub }
func (SetCameraEnabled) Kind() capability.Kind    { return capability.Camera }
func (PlaySound) Kind() capability.Kind           { return capability.Audio }
func (SetDoNotDisturb) Kind() capability.Kind     { return KindSystem }
func (MeshAdmin) Kind() capability.Kind           { return capability.BinaryMesh }

func (SetState) Name() string            { return ActionSetState }
func (SetLightScene) Name() string       { return ActionLight }
func (ActivateBridgeScene) Name() string { return ActionBridgeScene }
func (SetBinaryOutputs) Name() string    { return ActionBinaryOutputs }
func (ThermostatAdjust) Name() string    { return ActionThermostat }
func (ActivateActivity) Name() string    { return ActionActivity }
func (SendDeviceCommand) Name() string   { return ActionDeviceCommand }
func (SetCameraEnabled) Name() string    { return ActionCamera }
func (PlaySound) Name() string           { return ActionSound }
func (SetDoNotDisturb) Name() string     { return ActionDoNotDisturb }
func (MeshAdmin) Name() string           { return ActionMeshAdmin }

func (SetState) subAction()            {}
func (SetLightScene) subAction()       {}
func (ActivateBridgeScene) subAction() {}
func (SetBinaryOutputs) subAction()    {}
func (ThermostatAdjust) subAction()    {}
func (ActivateActivity) subAction()    {}
func (SendDeviceCommand) subAction()   {}
func (SetCameraEnabled) subAction()    {}
func (PlaySound) subAction()           {}
func (SetDoNotDisturb) subAction()     {}
func (MeshAdmin) subAction()           {}

// Plan is a resolved command: pure data, no adapter references.
type Plan struct {
	Command  string      `json:"command"`
	Modifier string      `json:"modifier,omitempty"`
	Actions  []SubAction `json:"actions"`
}

// Status is the overall result of an execution.
type Status string

// Execution statuses.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// OutcomeStatus is the result of one sub-action.
type OutcomeStatus string

// Sub-action outcomes.
const (
	OutcomeDone        OutcomeStatus = "done"
	OutcomeUnavailable OutcomeStatus = "unavailable"
	OutcomeFailed      OutcomeStatus = "failed"
	OutcomeSkipped     OutcomeStatus = "skipped"
)

// Outcome records what happened to one sub-action.
type Outcome struct {
	Index    int             `json:"index"`
	Action   string          `json:"action"`
	Kind     capability.Kind `json:"kind"`
	Status   OutcomeStatus   `json:"status"`
	Error    string          `json:"error,omitempty"`
	Degraded bool            `json:"degraded,omitempty"`

	err error
}

// Err returns the underlying error for failed and unavailable outcomes.
func (o Outcome) Err() error { return o.err }

// ExecutionResult is the aggregate result of running a Plan.
type ExecutionResult struct {
	ID           string                        `json:"id"`
	Command      string                        `json:"command"`
	Modifier     string                        `json:"modifier,omitempty"`
	Source       string                        `json:"source"`
	Status       Status                        `json:"status"`
	Error        string                        `json:"error,omitempty"`
	Outcomes     []Outcome                     `json:"outcomes"`
	ByCapability map[capability.Kind][]Outcome `json:"by_capability"`
	StartedAt    time.Time                     `json:"started_at"`
	Duration     time.Duration                 `json:"duration_ns"`
}

// OK reports whether the execution succeeded overall.
func (r *ExecutionResult) OK() bool {
	return r.Status == StatusOK
}

// Count returns the number of outcomes with status s.
func (r *ExecutionResult) Count(s OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}
