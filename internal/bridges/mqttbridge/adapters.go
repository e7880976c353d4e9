package mqttbridge

import (
	"context"

	"github.com/nerrad567/gray-logic-home/internal/capability"
)

// Compile-time interface checks.
var (
	_ capability.LightingAdapter    = (*Lighting)(nil)
	_ capability.ThermostatAdapter  = (*Thermostat)(nil)
	_ capability.ActivityHubAdapter = (*ActivityHub)(nil)
	_ capability.BinaryMeshAdapter  = (*BinaryMesh)(nil)
	_ capability.CameraAdapter      = (*Camera)(nil)
	_ capability.AudioAdapter       = (*Audio)(nil)
	_ capability.PresenceAdapter    = (*Presence)(nil)
)

// Lighting drives light groups through the lighting bridge.
type Lighting struct{ *bridge }

func (l *Lighting) SetLightState(ctx context.Context, group string, state capability.LightState) error {
	params := map[string]any{"on": state.On}
	if state.Brightness > 0 {
		params["bri"] = state.Brightness
	}
	if state.ColorTemp > 0 {
		params["ct"] = state.ColorTemp
	}
	return l.send(ctx, group, "set_state", params)
}

func (l *Lighting) ActivateScene(ctx context.Context, group, scene string) error {
	return l.send(ctx, group, "activate_scene", map[string]any{"scene": scene})
}

// Thermostat drives the heating controller bridge.
type Thermostat struct{ *bridge }

// SetTarget publishes to graylogic/command/thermostat/{ThermostatID}.
func (t *Thermostat) SetTarget(ctx context.Context, setting capability.ThermostatSetting) error {
	if setting.ThermostatID == "" {
		return ErrNoThermostatID
	}
	params := map[string]any{"thermostat_id": setting.ThermostatID}
	if setting.Mode != "" {
		params["mode"] = setting.Mode
	}
	if setting.Target != nil {
		params["target"] = *setting.Target
	}
	return t.send(ctx, setting.ThermostatID, "set_target", params)
}

func (t *Thermostat) SetAway(ctx context.Context, away bool) error {
	return t.send(ctx, "away", "set_away", map[string]any{"away": away})
}

// ActivityHub drives the AV hub bridge.
type ActivityHub struct{ *bridge }

func (a *ActivityHub) StartActivity(ctx context.Context, activity string) error {
	return a.send(ctx, "activity", "start_activity", map[string]any{"activity": activity})
}

func (a *ActivityHub) SendCommand(ctx context.Context, device, command string) error {
	return a.send(ctx, device, "device_command", map[string]any{"command": command})
}

// BinaryMesh drives switched outputs on the mesh bridge.
type BinaryMesh struct{ *bridge }

func (m *BinaryMesh) SetOutputs(ctx context.Context, outputs map[string]bool) error {
	params := make(map[string]any, len(outputs))
	for name, on := range outputs {
		params[name] = on
	}
	return m.send(ctx, "outputs", "set_outputs", params)
}

func (m *BinaryMesh) Admin(ctx context.Context, operation string) error {
	return m.send(ctx, "admin", operation, nil)
}

// RequestNodes asks the bridge for a "nodes" state message.
func (m *BinaryMesh) RequestNodes(ctx context.Context) error {
	return m.send(ctx, "nodes", "list_nodes", nil)
}

// Camera toggles recording on the camera bridge.
type Camera struct{ *bridge }

func (c *Camera) SetEnabled(ctx context.Context, enabled bool) error {
	return c.send(ctx, "recording", "set_enabled", map[string]any{"enabled": enabled})
}

// Audio plays sounds through the audio bridge.
type Audio struct{ *bridge }

func (a *Audio) Play(ctx context.Context, sound string) error {
	return a.send(ctx, "player", "play", map[string]any{"sound": sound})
}

// Presence only forwards presence events.
type Presence struct{ *bridge }
