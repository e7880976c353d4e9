package home

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nerrad567/gray-logic-home/internal/automation"
	"github.com/nerrad567/gray-logic-home/internal/capability"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-home/internal/mirror"
)

// nodeEventActive is the basic-event value a mesh node reports for an open
// contact or detected motion. Any other value means closed or idle.
const nodeEventActive = 255

// Debounce key prefixes.
const (
	doorKeyPrefix   = "door:"
	motionKeyPrefix = "motion:"
	sensorKeyPrefix = "sensor:"
	toggleKeyPrefix = "toggle:"
	presenceKey     = "presence"
)

// sensorValueNames maps mesh value ids to mirrored measurement names.
var sensorValueNames = map[string]string{
	"49-1-1":  "temperature",
	"49-1-5":  "humidity",
	"49-1-3":  "luminance",
	"49-1-27": "uv",
	"128-1-0": "battery",
	"113-1-1": "alarm",
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev capability.Event) {
	switch ev.Name {
	case capability.EventChange:
		o.handleChange(ctx, ev)
	case capability.EventReady:
		o.logger.Info("capability reported ready", "kind", ev.Kind)
	case capability.EventError:
		o.logger.Warn("capability error", "kind", ev.Kind, "error", ev.Err)
	default:
		o.logger.Debug("capability event", "kind", ev.Kind, "event", ev.Name, "error", ev.Err)
	}
}

func (o *Orchestrator) handleChange(ctx context.Context, ev capability.Event) {
	switch p := ev.Payload.(type) {
	case capability.ThermostatReading:
		if p.ID == "" {
			o.logger.Warn("thermostat reading without id dropped")
			return
		}
		o.state.Thermostats[p.ID] = p
		o.sink.Set(mirror.ThermostatPath(p.ID), p)

	case capability.DeviceState:
		o.devices[ev.Kind] = true
		o.sink.Set(mirror.DevicesPath(string(ev.Kind)), p.Data)

	case capability.NodeInventory:
		o.haveNodes = true
		o.sink.Set(mirror.PathMeshNodes, p.Nodes)

	case capability.NodeEvent:
		o.handleNodeEvent(ctx, p)

	case capability.NodeValue:
		o.handleNodeValue(p)

	case capability.PresenceUpdate:
		o.handlePresence(ctx, p)

	case capability.SensorToggle:
		o.handleToggle(ctx, p)

	case capability.ActivityUpdate:
		if o.state.Activity != p.Activity {
			o.state.Activity = p.Activity
			o.sink.Set(mirror.PathActivity, p.Activity)
		}

	default:
		o.logger.Debug("unhandled change payload", "kind", ev.Kind, "type", fmt.Sprintf("%T", ev.Payload))
	}
}

func (o *Orchestrator) handleNodeEvent(ctx context.Context, ev capability.NodeEvent) {
	sensor, ok := o.registry.Snapshot().Sensors[ev.Node]
	if !ok {
		o.logger.Debug("event from unconfigured node", "node", ev.Node, "value", ev.Value)
		return
	}

	active := ev.Value == nodeEventActive
	switch sensor.Kind {
	case automation.SensorDoor:
		value := DoorClosed
		if active {
			value = DoorOpen
		}
		o.handleDoor(ctx, sensor.Label, value, sensor.DriveStateTransition)
	case automation.SensorMotion, automation.SensorMulti:
		o.handleMotion(ctx, sensor.Label, active)
	}
}

// handleDoor applies a door value. Duplicates are dropped without any
// side effect.
func (o *Orchestrator) handleDoor(ctx context.Context, name, value string, driveStateTransition bool) {
	changed, prev := o.debounce.Observe(doorKeyPrefix+name, value)
	if !changed {
		return
	}

	o.sink.Set(mirror.DoorPath(name), value)
	o.sink.Push(mirror.LogDoors, map[string]any{
		"name":     name,
		"value":    value,
		"previous": prev,
		"state":    string(o.state.System),
	})
	o.metrics.Incr(metrics.DoorChanged, metrics.Tag("door", name), metrics.Tag("value", value))
	o.emit(Event{Type: EventDoorChanged, Data: map[string]any{"name": name, "value": value}})
	o.logger.Info("door changed", "door", name, "value", value)

	if driveStateTransition && value == DoorOpen && o.state.System == automation.StateAway {
		if err := o.machine.SetState(ctx, automation.StateHome); err != nil {
			o.logger.Error("door-driven disarm failed", "door", name, "error", err)
		}
	}

	modifier := ""
	if value == DoorClosed {
		modifier = automation.ModifierOff
	}
	o.dispatch(ctx, "DOOR_"+name, modifier, SourceDoor)
}

func (o *Orchestrator) handleMotion(ctx context.Context, label string, active bool) {
	value := "IDLE"
	if active {
		value = "MOTION"
	}
	if changed, _ := o.debounce.Observe(motionKeyPrefix+label, value); !changed {
		return
	}
	o.sink.Set(mirror.SensorPath(label, "motion"), active)

	modifier := ""
	if !active {
		modifier = automation.ModifierOff
	}
	o.dispatch(ctx, "MOTION_"+label, modifier, SourceMotion)
}

func (o *Orchestrator) handleNodeValue(v capability.NodeValue) {
	sensor, ok := o.registry.Snapshot().Sensors[v.Node]
	if !ok {
		return
	}
	name, ok := sensorValueNames[v.ValueID]
	if !ok {
		return
	}
	key := sensorKeyPrefix + sensor.Label + "/" + name
	if changed, _ := o.debounce.Observe(key, fmt.Sprint(v.Value)); !changed {
		return
	}
	o.sink.Set(mirror.SensorPath(sensor.Label, name), v.Value)
}

func (o *Orchestrator) handlePresence(ctx context.Context, p capability.PresenceUpdate) {
	present := append([]string{}, p.Present...)
	sort.Strings(present)

	if changed, _ := o.debounce.Observe(presenceKey, strings.Join(present, ",")); !changed {
		return
	}

	o.state.Presence = present
	o.sink.Set(mirror.PathPresence, present)
	o.sink.Push(mirror.LogPresence, map[string]any{
		"present": present,
		"count":   len(present),
	})

	name := "PRESENCE_NONE"
	if len(present) > 0 {
		name = "PRESENCE_SOME"
	}
	o.dispatch(ctx, name, "", SourcePresence)
}

// handleToggle flips HOME and ARMED when the configured away toggle is
// switched on.
func (o *Orchestrator) handleToggle(ctx context.Context, t capability.SensorToggle) {
	toggle := o.registry.Snapshot().AwayToggleSensor
	if toggle == "" || !strings.EqualFold(t.Name, toggle) {
		return
	}
	changed, _ := o.debounce.Observe(toggleKeyPrefix+strings.ToUpper(t.Name), fmt.Sprint(t.On))
	if !changed || !t.On {
		return
	}

	next := automation.StateHome
	if o.state.System == automation.StateHome {
		next = automation.StateArmed
	}
	if err := o.machine.SetState(ctx, next); err != nil {
		o.logger.Error("away toggle failed", "error", err)
	}
}

func (o *Orchestrator) capabilityChanged(ctx context.Context, kind capability.Kind, available bool) {
	if available {
		o.sink.Set(mirror.CapabilityPath(string(kind)), true)
		if kind == capability.BinaryMesh {
			o.startNodeRefresh()
		}
	} else {
		o.sink.Set(mirror.CapabilityPath(string(kind)), nil)
		o.clearCapabilityState(kind)
	}
	o.emit(Event{Type: EventCapabilityChanged, Data: map[string]any{
		"kind":      string(kind),
		"available": available,
	}})

	if kind == capability.Audio && available && !o.readyPlayed {
		o.readyPlayed = true
		o.playReadySound(ctx)
	}
}

// clearCapabilityState drops readings owned by a demoted capability.
func (o *Orchestrator) clearCapabilityState(kind capability.Kind) {
	if o.devices[kind] {
		delete(o.devices, kind)
		o.sink.Set(mirror.DevicesPath(string(kind)), nil)
	}

	switch kind {
	case capability.BinaryMesh:
		o.stopNodeRefresh()
		o.clearNodes()
	case capability.Thermostat:
		for id := range o.state.Thermostats {
			o.sink.Set(mirror.ThermostatPath(id), nil)
		}
		clear(o.state.Thermostats)
	case capability.ActivityHub:
		if o.state.Activity != "" {
			o.state.Activity = ""
			o.sink.Set(mirror.PathActivity, nil)
		}
	}
}

func (o *Orchestrator) playReadySound(ctx context.Context) {
	sound := o.registry.Snapshot().ReadySound
	if sound == "" {
		return
	}
	plan := &automation.Plan{
		Command: "READY",
		Actions: []automation.SubAction{automation.PlaySound{Sound: sound}},
	}
	o.await(o.engine.Execute(ctx, plan, SourceStartup))
}

// notification records the hasNotification flag and delivers it when
// someone is home.
func (o *Orchestrator) notification(ctx context.Context, pending bool) {
	o.state.HasNotification = pending
	if pending && o.state.System == automation.StateHome {
		o.deliverNotification(ctx)
	}
}

func (o *Orchestrator) deliverNotification(ctx context.Context) {
	o.state.HasNotification = false
	o.dispatch(ctx, "NEW_NOTIFICATION", "", SourceNotify)
	o.sink.Set(mirror.PathHasNotification, false)
}
