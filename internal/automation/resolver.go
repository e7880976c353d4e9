package automation

import (
	"fmt"

	"github.com/nerrad567/gray-logic-home/internal/capability"
)

// Readings is the read-only view of live state the resolver may consult.
type Readings interface {
	// ThermostatReading returns the last reported state of one thermostat.
	ThermostatReading(id string) (capability.ThermostatReading, bool)

	// DoNotDisturb reports whether do-not-disturb is on.
	DoNotDisturb() bool
}

type noReadings struct{}

func (noReadings) ThermostatReading(string) (capability.ThermostatReading, bool) {
	return capability.ThermostatReading{}, false
}

func (noReadings) DoNotDisturb() bool { return false }

const defaultThermostatStep = 1.0

// Resolver turns command names into plans against the registry's current
// snapshot.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver reading from registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve resolves name against a single snapshot of the configuration.
func (r *Resolver) Resolve(name, modifier string, readings Readings) (*Plan, error) {
	return Resolve(r.registry.Snapshot(), name, modifier, readings)
}

// Resolve builds the plan for name with modifier applied.
//
// It never calls adapters. An unknown name returns a *LookupError wrapping
// ErrCommandNotFound, and a template that was never validated (an action
// type the resolver does not know) one wrapping ErrInvalidAction. An unknown
// light scene falls back to DefaultScene and marks the sub-action Degraded.
func Resolve(cfg *HomeConfig, name, modifier string, readings Readings) (*Plan, error) {
	name = normaliseName(name)
	modifier = normaliseName(modifier)

	if cfg == nil {
		return nil, &LookupError{Name: name, Err: ErrNoConfig}
	}
	if readings == nil {
		readings = noReadings{}
	}

	tmpl, ok := cfg.Commands[name]
	if !ok {
		return nil, &LookupError{Name: name, Err: ErrCommandNotFound}
	}

	plan := &Plan{
		Command:  name,
		Modifier: modifier,
		Actions:  make([]SubAction, 0, len(tmpl.Actions)),
	}
	for i, spec := range tmpl.Actions {
		action, err := resolveAction(cfg, spec, modifier, readings)
		if err != nil {
			return nil, &LookupError{Name: name, Err: fmt.Errorf("action %d: %w", i, err)}
		}
		plan.Actions = append(plan.Actions, action)
	}
	return plan, nil
}

func resolveAction(cfg *HomeConfig, spec ActionSpec, modifier string, readings Readings) (SubAction, error) { //nolint:gocyclo // one case per action type
	off := modifier == ModifierOff

	switch spec.Type {
	case ActionSetState:
		return SetState{State: SystemState(spec.State)}, nil

	case ActionLight:
		return resolveLight(cfg, spec, modifier), nil

	case ActionBridgeScene:
		return ActivateBridgeScene{Group: spec.Group, Scene: spec.Scene}, nil

	case ActionBinaryOutputs:
		outputs := make(map[string]bool, len(spec.Outputs))
		for node, on := range spec.Outputs {
			outputs[node] = on && !off
		}
		return SetBinaryOutputs{Outputs: outputs}, nil

	case ActionThermostat:
		if spec.ThermostatID == "" {
			return nil, fmt.Errorf("%w: thermostat needs thermostatId", ErrInvalidAction)
		}
		return resolveThermostat(spec, modifier, readings), nil

	case ActionActivity:
		return ActivateActivity{Activity: spec.Activity}, nil

	case ActionDeviceCommand:
		return SendDeviceCommand{Device: spec.Device, Command: spec.Command}, nil

	case ActionCamera:
		return SetCameraEnabled{Enabled: boolValue(spec.Enabled) && !off}, nil

	case ActionSound:
		return PlaySound{Sound: spec.Sound, Force: spec.Force}, nil

	case ActionDoNotDisturb:
		return SetDoNotDisturb{Enabled: boolValue(spec.Enabled) && !off}, nil

	case ActionMeshAdmin:
		return MeshAdmin{Operation: spec.Operation}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, spec.Type)
}

func resolveLight(cfg *HomeConfig, spec ActionSpec, modifier string) SetLightScene {
	name := spec.Scene
	if modifier != "" {
		name = modifier
	}

	lights := append([]string(nil), spec.Lights...)

	if params, ok := cfg.Scene(name); ok {
		return SetLightScene{Lights: lights, Scene: name, State: params.LightState()}
	}
	if name == ModifierOff {
		return SetLightScene{Lights: lights, Scene: name, State: OffScene.LightState()}
	}
	return SetLightScene{Lights: lights, Scene: name, State: DefaultScene.LightState(), Degraded: true}
}

// resolveThermostat adjusts from the reading of spec's own thermostat, so
// UP and DOWN step each thermostat from its current target.
func resolveThermostat(spec ActionSpec, modifier string, readings Readings) ThermostatAdjust {
	setting := capability.ThermostatSetting{ThermostatID: spec.ThermostatID, Mode: spec.Mode}
	if spec.Target != nil {
		t := *spec.Target
		setting.Target = &t
	}

	reading, haveReading := readings.ThermostatReading(spec.ThermostatID)

	switch modifier {
	case ModifierUp, ModifierDown:
		step := spec.Step
		if step == 0 {
			step = defaultThermostatStep
		}
		if modifier == ModifierDown {
			step = -step
		}

		var base float64
		switch {
		case haveReading:
			base = reading.Target
		case setting.Target != nil:
			base = *setting.Target
		default:
			// Nothing to adjust from.
			return ThermostatAdjust{Setting: setting}
		}
		t := clamp(base+step, minThermostatTemp, maxThermostatTemp)
		setting.Target = &t

	case ModifierOff:
		setting.Mode = "off"
	}

	if haveReading {
		if setting.Target == nil {
			t := reading.Target
			setting.Target = &t
		}
		if setting.Mode == "" {
			setting.Mode = reading.Mode
		}
	}
	return ThermostatAdjust{Setting: setting}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
