package automation

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-home/internal/capability"
)

// Validation constants.
const (
	maxActions        = 100
	minThermostatTemp = 5.0
	maxThermostatTemp = 35.0
)

func validateCommand(specs []ActionSpec) error {
	if len(specs) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrInvalidAction, maxActions)
	}
	for i := range specs {
		if err := validateAction(&specs[i]); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// validateAction checks one entry and normalises its names in place.
func validateAction(a *ActionSpec) error { //nolint:gocyclo // one case per action type
	a.Type = strings.ToLower(strings.TrimSpace(a.Type))

	switch a.Type {
	case ActionSetState:
		s, err := ParseSystemState(a.State)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		a.State = string(s)

	case ActionLight:
		if len(a.Lights) == 0 {
			return fmt.Errorf("%w: light needs at least one group in lights", ErrInvalidAction)
		}
		a.Scene = normaliseName(a.Scene)

	case ActionBridgeScene:
		if a.Group == "" || a.Scene == "" {
			return fmt.Errorf("%w: bridge_scene needs group and scene", ErrInvalidAction)
		}

	case ActionBinaryOutputs:
		if len(a.Outputs) == 0 {
			return fmt.Errorf("%w: binary_outputs needs outputs", ErrInvalidAction)
		}

	case ActionThermostat:
		a.ThermostatID = strings.TrimSpace(a.ThermostatID)
		if a.ThermostatID == "" {
			return fmt.Errorf("%w: thermostat needs thermostatId", ErrInvalidAction)
		}
		if a.Target != nil && (*a.Target < minThermostatTemp || *a.Target > maxThermostatTemp) {
			return fmt.Errorf("%w: thermostat target must be %.0f-%.0f", ErrInvalidAction, minThermostatTemp, maxThermostatTemp)
		}
		if a.Step < 0 {
			return fmt.Errorf("%w: thermostat step must not be negative", ErrInvalidAction)
		}
		a.Mode = strings.ToLower(strings.TrimSpace(a.Mode))

	case ActionActivity:
		if a.Activity == "" {
			return fmt.Errorf("%w: activity needs activity", ErrInvalidAction)
		}

	case ActionDeviceCommand:
		if a.Device == "" || a.Command == "" {
			return fmt.Errorf("%w: device_command needs device and command", ErrInvalidAction)
		}

	case ActionCamera, ActionDoNotDisturb:
		if a.Enabled == nil {
			return fmt.Errorf("%w: %s needs enabled", ErrInvalidAction, a.Type)
		}

	case ActionSound:
		if a.Sound == "" {
			return fmt.Errorf("%w: sound needs sound", ErrInvalidAction)
		}

	case ActionMeshAdmin:
		if a.Operation != capability.MeshAddDevice && a.Operation != capability.MeshHealNetwork {
			return fmt.Errorf("%w: unknown mesh operation %q", ErrInvalidAction, a.Operation)
		}

	case "":
		return fmt.Errorf("%w: missing type", ErrInvalidAction)

	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}
	return nil
}

func validateSensor(s SensorConfig) error {
	if s.Label == "" {
		return fmt.Errorf("%w: sensor needs a label", ErrInvalidConfig)
	}
	switch s.Kind {
	case SensorDoor, SensorMotion, SensorMulti:
		return nil
	default:
		return fmt.Errorf("%w: unknown sensor kind %q", ErrInvalidConfig, s.Kind)
	}
}
