package capability

import "context"

// Adapter is implemented by every capability adapter.
type Adapter interface {
	// Close releases the adapter's resources. Called once on shutdown or
	// demotion.
	Close() error
}

// LightState is a light group setting.
type LightState struct {
	On         bool `json:"on"`
	Brightness int  `json:"bri,omitempty"`
	ColorTemp  int  `json:"ct,omitempty"`
}

// LightingAdapter drives light groups.
type LightingAdapter interface {
	Adapter
	SetLightState(ctx context.Context, group string, state LightState) error
	ActivateScene(ctx context.Context, group, scene string) error
}

// ThermostatSetting is a target change for one thermostat. Empty Mode and
// nil Target leave the current values unchanged.
type ThermostatSetting struct {
	ThermostatID string   `json:"thermostat_id"`
	Mode         string   `json:"mode,omitempty"`
	Target       *float64 `json:"target,omitempty"`
}

// ThermostatAdapter drives the heating/cooling controller. SetAway applies
// to every thermostat the controller owns.
type ThermostatAdapter interface {
	Adapter
	SetTarget(ctx context.Context, setting ThermostatSetting) error
	SetAway(ctx context.Context, away bool) error
}

// ActivityHubAdapter drives the AV activity hub.
type ActivityHubAdapter interface {
	Adapter
	StartActivity(ctx context.Context, activity string) error
	SendCommand(ctx context.Context, device, command string) error
}

// Mesh admin operations.
const (
	MeshAddDevice   = "add_device"
	MeshHealNetwork = "heal_network"
)

// BinaryMeshAdapter drives switched outputs on the sensor/actuator mesh.
type BinaryMeshAdapter interface {
	Adapter
	SetOutputs(ctx context.Context, outputs map[string]bool) error
	Admin(ctx context.Context, operation string) error

	// RequestNodes asks the controller to publish its node inventory.
	RequestNodes(ctx context.Context) error
}

// CameraAdapter enables or disables camera recording.
type CameraAdapter interface {
	Adapter
	SetEnabled(ctx context.Context, enabled bool) error
}

// AudioAdapter plays named sounds.
type AudioAdapter interface {
	Adapter
	Play(ctx context.Context, sound string) error
}

// PresenceAdapter only emits events.
type PresenceAdapter interface {
	Adapter
}
