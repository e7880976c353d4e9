package home

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/automation"
	"github.com/nerrad567/gray-logic-home/internal/capability"
	"github.com/nerrad567/gray-logic-home/internal/capability/captest"
	"github.com/nerrad567/gray-logic-home/internal/mirror"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type fakeCaps struct {
	mu       sync.Mutex
	adapters map[capability.Kind]capability.Adapter
}

func newFakeCaps() *fakeCaps {
	return &fakeCaps{adapters: make(map[capability.Kind]capability.Adapter)}
}

func (f *fakeCaps) set(kind capability.Kind, a capability.Adapter) {
	f.mu.Lock()
	f.adapters[kind] = a
	f.mu.Unlock()
}

func (f *fakeCaps) Adapter(kind capability.Kind) (capability.Adapter, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.adapters[kind]
	return a, ok
}

type watchedPath struct {
	mu       sync.Mutex
	handlers map[string]mirror.WatchFunc
}

func (w *watchedPath) Watch(path string, fn mirror.WatchFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handlers == nil {
		w.handlers = make(map[string]mirror.WatchFunc)
	}
	w.handlers[path] = fn
	return nil
}

func (w *watchedPath) deliver(t *testing.T, path, payload string) {
	t.Helper()
	w.mu.Lock()
	fn := w.handlers[path]
	w.mu.Unlock()
	if fn == nil {
		t.Fatalf("no watch on %s", path)
	}
	fn(path, []byte(payload))
}

// ─── Helper ─────────────────────────────────────────────────────────────────

const homeConfig = `
armingDelayMs: 100
awayRefreshMinutes: 0
awayToggleSensor: away
readySound: ready.mp3
lightScenes:
  dim: {on: true, bri: 60, ct: 450}
sensors:
  "7": {label: front, kind: DOOR, driveStateTransition: true}
  "8": {label: back, kind: DOOR}
  "9": {label: hall, kind: MOTION}
  "10": {label: kitchen, kind: MULTI}
keypad:
  keys:
    "1": goodnight
commands:
  RUN_ON_AWAY: []
  RUN_ON_ARMED: []
  RUN_ON_HOME: []
  DOOR_FRONT:
    - type: light
      lights: [hall]
      scene: dim
  MOTION_HALL:
    - type: light
      lights: [hall]
  PRESENCE_SOME: []
  PRESENCE_NONE: []
  NEW_NOTIFICATION:
    - type: sound
      sound: ding.mp3
  RUN_ON_DOORBELL:
    - type: sound
      sound: bell.mp3
  goodnight:
    - type: set_state
      state: ARMED
    - type: do_not_disturb
      enabled: true
  movie:
    - type: light
      lights: [living]
    - type: activity
      activity: Watch TV
  lights_only:
    - type: light
      lights: [living]
  upstairs_warmer:
    - type: thermostat
      thermostatId: upstairs
      step: 1
`

type harness struct {
	orch *Orchestrator
	sink *mirror.Memory
	caps *fakeCaps
	reg  *automation.Registry
	stop func()
}

func setupOrchestrator(t *testing.T, config string, initial SystemState) *harness {
	t.Helper()
	return setupOrchestratorWith(t, config, Options{InitialState: initial, Version: "test"})
}

func setupOrchestratorWith(t *testing.T, config string, opts Options) *harness {
	t.Helper()
	cfg, err := automation.ParseConfig([]byte(config))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(cfg.Quarantined) != 0 {
		t.Fatalf("quarantined: %+v", cfg.Quarantined)
	}

	h := &harness{
		sink: mirror.NewMemory(),
		caps: newFakeCaps(),
		reg:  automation.NewRegistry(cfg),
	}
	h.orch = New(opts, h.reg, h.caps, h.sink)

	ctx, cancel := context.WithCancel(context.Background())
	go h.orch.Run(ctx) //nolint:errcheck // returns nil on cancel
	h.stop = func() {
		cancel()
		<-h.orch.Done()
	}
	t.Cleanup(h.stop)
	return h
}

// commandCount counts finished executions of name in logs/commands.
func (h *harness) commandCount(name string) int {
	n := 0
	for _, v := range h.sink.Pushes(mirror.LogCommands) {
		if entry, ok := v.(map[string]any); ok && entry["command"] == name {
			n++
		}
	}
	return n
}

func (h *harness) commandEntries(name string) []map[string]any {
	var out []map[string]any
	for _, v := range h.sink.Pushes(mirror.LogCommands) {
		if entry, ok := v.(map[string]any); ok && entry["command"] == name {
			out = append(out, entry)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	snap, err := h.orch.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestOrchestrator_Startup(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)
	snap := h.snapshot(t)

	if snap.SystemState != automation.StateHome {
		t.Errorf("SystemState = %s", snap.SystemState)
	}
	if v, _ := h.sink.Get(mirror.PathVersion); v != "test" {
		t.Errorf("state/version = %v", v)
	}
	if v, _ := h.sink.Get(mirror.PathStarted); v == nil {
		t.Error("state/time/started not written")
	}
	if v, _ := h.sink.Get(mirror.PathSystemState); v != "HOME" {
		t.Errorf("state/systemState = %v", v)
	}
	if h.commandCount("RUN_ON_HOME") != 0 {
		t.Error("startup should not run state hooks")
	}
}

func TestOrchestrator_ArmedToAwayEndToEnd(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)
	thermostat := &captest.Adapter{}
	h.caps.set(capability.Thermostat, thermostat)

	if err := h.orch.SetState(context.Background(), automation.StateArmed); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if snap := h.snapshot(t); snap.SystemState != automation.StateArmed || !snap.ArmingPending {
		t.Fatalf("snapshot = %+v", snap)
	}

	waitFor(t, "AWAY", func() bool { return h.snapshot(t).SystemState == automation.StateAway })
	waitFor(t, "RUN_ON_AWAY", func() bool { return h.commandCount("RUN_ON_AWAY") == 1 })

	// Nothing else fires afterwards.
	time.Sleep(150 * time.Millisecond)
	if n := h.commandCount("RUN_ON_AWAY"); n != 1 {
		t.Errorf("RUN_ON_AWAY ran %d times, want 1", n)
	}
	if n := h.commandCount("RUN_ON_ARMED"); n != 1 {
		t.Errorf("RUN_ON_ARMED ran %d times, want 1", n)
	}
	waitFor(t, "thermostat away", func() bool { return thermostat.CallCount() == 2 })
}

func TestOrchestrator_DoorOpenWhileAwayDisarms(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateAway)
	lights := &captest.Adapter{}
	h.caps.set(capability.Lighting, lights)

	h.orch.HandleEvent(capability.Event{
		Kind:    capability.BinaryMesh,
		Name:    capability.EventChange,
		Payload: capability.NodeEvent{Node: "7", Value: nodeEventActive},
	})

	waitFor(t, "HOME", func() bool { return h.snapshot(t).SystemState == automation.StateHome })
	waitFor(t, "DOOR_FRONT", func() bool { return h.commandCount("DOOR_FRONT") == 1 })

	entry := h.commandEntries("DOOR_FRONT")[0]
	if entry["modifier"] != "" || entry["status"] != "ok" {
		t.Errorf("DOOR_FRONT entry = %v", entry)
	}
	if v, _ := h.sink.Get(mirror.DoorPath("FRONT")); v != DoorOpen {
		t.Errorf("door state = %v", v)
	}
	waitFor(t, "RUN_ON_HOME", func() bool { return h.commandCount("RUN_ON_HOME") == 1 })

	calls := lights.Calls()
	if len(calls) != 1 || calls[0].Args[0] != "hall" {
		t.Errorf("lighting calls = %+v", calls)
	}
}

func TestOrchestrator_DoorDebounce(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := h.orch.HandleDoorEvent(ctx, "front", "open", false); err != nil {
			t.Fatalf("HandleDoorEvent: %v", err)
		}
	}
	if err := h.orch.HandleDoorEvent(ctx, "FRONT", "CLOSED", false); err != nil {
		t.Fatalf("HandleDoorEvent: %v", err)
	}

	waitFor(t, "two DOOR_FRONT runs", func() bool { return h.commandCount("DOOR_FRONT") == 2 })

	if n := h.sink.Count("push", mirror.LogDoors); n != 2 {
		t.Errorf("door log entries = %d, want 2", n)
	}
	var closing int
	for _, entry := range h.commandEntries("DOOR_FRONT") {
		if entry["modifier"] == "OFF" {
			closing++
		}
	}
	if closing != 1 {
		t.Errorf("DOOR_FRONT OFF runs = %d, want 1", closing)
	}
	if snap := h.snapshot(t); snap.Doors["FRONT"] != DoorClosed {
		t.Errorf("Doors = %v", snap.Doors)
	}

	if err := h.orch.HandleDoorEvent(ctx, "FRONT", "AJAR", false); !errors.Is(err, ErrInvalidDoorValue) {
		t.Errorf("error = %v, want ErrInvalidDoorValue", err)
	}
}

func TestOrchestrator_DoorWithoutDriveKeepsAway(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateAway)

	h.orch.HandleEvent(capability.Event{
		Name:    capability.EventChange,
		Payload: capability.NodeEvent{Node: "8", Value: nodeEventActive},
	})

	waitFor(t, "door state", func() bool {
		v, _ := h.sink.Get(mirror.DoorPath("BACK"))
		return v == DoorOpen
	})
	if s := h.snapshot(t).SystemState; s != automation.StateAway {
		t.Errorf("SystemState = %s, want AWAY", s)
	}
}

func TestOrchestrator_ThermostatStepsFromItsOwnReading(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)
	thermostat := &captest.Adapter{}
	h.caps.set(capability.Thermostat, thermostat)

	for _, r := range []capability.ThermostatReading{
		{ID: "upstairs", Mode: "heat", Target: 20},
		{ID: "downstairs", Mode: "cool", Target: 24},
	} {
		h.orch.HandleEvent(capability.Event{Kind: capability.Thermostat, Name: capability.EventChange, Payload: r})
	}

	snap := h.snapshot(t)
	if len(snap.Thermostats) != 2 || snap.Thermostats["downstairs"].Target != 24 {
		t.Fatalf("Thermostats = %+v", snap.Thermostats)
	}
	if v, _ := h.sink.Get(mirror.ThermostatPath("downstairs")); v == nil {
		t.Error("state/thermostats/downstairs not written")
	}

	if _, err := h.orch.ExecuteCommandByName(context.Background(), "upstairs_warmer", "up", "test"); err != nil {
		t.Fatalf("ExecuteCommandByName: %v", err)
	}
	waitFor(t, "SetTarget", func() bool { return thermostat.CallCount() == 1 })

	setting := thermostat.Calls()[0].Args[0].(capability.ThermostatSetting)
	if setting.ThermostatID != "upstairs" || setting.Mode != "heat" {
		t.Errorf("setting = %+v", setting)
	}
	if setting.Target == nil || *setting.Target != 21 {
		t.Errorf("Target = %v, want 21", setting.Target)
	}
}

func TestOrchestrator_UnknownCommand(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)
	adapter := &captest.Adapter{}
	for _, kind := range capability.AllKinds() {
		h.caps.set(kind, adapter)
	}
	h.snapshot(t)
	before := len(h.sink.Writes())

	result, err := h.orch.ExecuteCommandByName(context.Background(), "teleport", "", "test")

	if !errors.Is(err, automation.ErrCommandNotFound) {
		t.Fatalf("error = %v, want ErrCommandNotFound", err)
	}
	if result == nil || result.Status != automation.StatusError {
		t.Fatalf("result = %+v, want error status", result)
	}
	if n := adapter.CallCount(); n != 0 {
		t.Errorf("adapter calls = %d, want 0", n)
	}
	writes := h.sink.Writes()[before:]
	if len(writes) != 1 || writes[0].Op != "push" || writes[0].Path != mirror.LogCommands {
		t.Errorf("writes = %+v, want one push to %s", writes, mirror.LogCommands)
	}
	if h.commandCount("TELEPORT") != 1 {
		t.Error("rejected command not logged")
	}
}

func TestOrchestrator_PanickedTaskIsAnError(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)

	err := h.orch.do(context.Background(), func(context.Context) { panic("boom") })
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("do() error = %v, want ErrTaskFailed", err)
	}

	// The loop survives and later triggers still run.
	result, err := h.orch.ExecuteCommandByName(context.Background(), "lights_only", "", "test")
	if err != nil || result == nil {
		t.Fatalf("ExecuteCommandByName = %+v, %v", result, err)
	}
}

func TestOrchestrator_PartialAndTotalFailure(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)
	h.caps.set(capability.Lighting, &captest.Adapter{})
	ctx := context.Background()

	// Activity hub unavailable, lighting works.
	result, err := h.orch.ExecuteCommandByName(ctx, "movie", "", "test")
	if err != nil {
		t.Fatalf("ExecuteCommandByName: %v", err)
	}
	if result.Status != automation.StatusOK || result.Count(automation.OutcomeUnavailable) != 1 {
		t.Errorf("movie result = %s, outcomes %+v", result.Status, result.Outcomes)
	}

	h.caps.set(capability.Lighting, &captest.Adapter{Err: errors.New("hub offline")})
	result, err = h.orch.ExecuteCommandByName(ctx, "lights_only", "", "test")
	if err != nil {
		t.Fatalf("ExecuteCommandByName: %v", err)
	}
	if result.Status != automation.StatusError {
		t.Errorf("all-failed result = %s, want error", result.Status)
	}
}

func TestOrchestrator_CommandChangesState(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)

	result, err := h.orch.HandleKeyEntry(context.Background(), "1", "", "keypad")
	if err != nil {
		t.Fatalf("HandleKeyEntry: %v", err)
	}
	if result.Command != "GOODNIGHT" || result.Status != automation.StatusOK {
		t.Errorf("result = %+v", result)
	}

	snap := h.snapshot(t)
	if snap.SystemState != automation.StateArmed || !snap.DoNotDisturb {
		t.Errorf("snapshot = %+v", snap)
	}
	if v, _ := h.sink.Get(mirror.PathDoNotDisturb); v != true {
		t.Errorf("state/doNotDisturb = %v", v)
	}

	if _, err := h.orch.HandleKeyEntry(context.Background(), "9", "", "keypad"); !errors.Is(err, ErrKeyNotBound) {
		t.Errorf("unbound key error = %v", err)
	}
}

const loopConfig = `
commands:
  RUN_ON_HOME:
    - type: set_state
      state: AWAY
  RUN_ON_AWAY:
    - type: set_state
      state: HOME
`

func TestOrchestrator_RecursionLimit(t *testing.T) {
	h := setupOrchestrator(t, loopConfig, automation.StateAway)

	done := make(chan error, 1)
	go func() { done <- h.orch.SetState(context.Background(), automation.StateHome) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SetState: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("state hooks recursed without limit")
	}

	waitFor(t, "recursion rejection", func() bool {
		for _, v := range h.sink.Pushes(mirror.LogCommands) {
			entry, _ := v.(map[string]any)
			msg, _ := entry["error"].(string)
			if entry["status"] == "error" && strings.Contains(msg, "recursion") {
				return true
			}
		}
		return false
	})

	total := h.commandCount("RUN_ON_HOME") + h.commandCount("RUN_ON_AWAY")
	if total > automation.MaxDepth+1 {
		t.Errorf("%d hook executions logged, want at most %d", total, automation.MaxDepth+1)
	}

	// The loop is still responsive.
	h.snapshot(t)
}

func TestOrchestrator_MotionAndSensors(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)
	h.caps.set(capability.Lighting, &captest.Adapter{})

	motion := capability.Event{Name: capability.EventChange, Payload: capability.NodeEvent{Node: "9", Value: nodeEventActive}}
	h.orch.HandleEvent(motion)
	h.orch.HandleEvent(motion)
	h.orch.HandleEvent(capability.Event{Name: capability.EventChange, Payload: capability.NodeValue{Node: "10", ValueID: "49-1-1", Value: 21.5}})
	h.orch.HandleEvent(capability.Event{Name: capability.EventChange, Payload: capability.NodeValue{Node: "10", ValueID: "99-9-9", Value: 1}})

	waitFor(t, "MOTION_HALL", func() bool { return h.commandCount("MOTION_HALL") == 1 })
	waitFor(t, "temperature", func() bool {
		v, _ := h.sink.Get(mirror.SensorPath("KITCHEN", "temperature"))
		return v == 21.5
	})
	h.snapshot(t)
	if n := h.commandCount("MOTION_HALL"); n != 1 {
		t.Errorf("MOTION_HALL ran %d times, want 1", n)
	}
}

func TestOrchestrator_Presence(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)

	h.orch.HandleEvent(capability.Event{Name: capability.EventChange, Payload: capability.PresenceUpdate{Present: []string{"sam", "alex"}}})
	h.orch.HandleEvent(capability.Event{Name: capability.EventChange, Payload: capability.PresenceUpdate{Present: []string{"alex", "sam"}}})
	h.orch.HandleEvent(capability.Event{Name: capability.EventChange, Payload: capability.PresenceUpdate{}})

	waitFor(t, "presence commands", func() bool {
		return h.commandCount("PRESENCE_SOME") == 1 && h.commandCount("PRESENCE_NONE") == 1
	})
	if n := h.sink.Count("push", mirror.LogPresence); n != 2 {
		t.Errorf("presence log entries = %d, want 2", n)
	}
}

func TestOrchestrator_AwayToggle(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)

	h.orch.HandleEvent(capability.Event{Name: capability.EventChange, Payload: capability.SensorToggle{Name: "AWAY", On: true}})
	waitFor(t, "ARMED", func() bool { return h.snapshot(t).SystemState == automation.StateArmed })

	h.orch.HandleEvent(capability.Event{Name: capability.EventChange, Payload: capability.SensorToggle{Name: "away", On: false}})
	h.orch.HandleEvent(capability.Event{Name: capability.EventChange, Payload: capability.SensorToggle{Name: "away", On: true}})
	waitFor(t, "HOME", func() bool { return h.snapshot(t).SystemState == automation.StateHome })
}

func TestOrchestrator_DoNotDisturbSkipsSounds(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)
	audio := &captest.Adapter{}
	h.caps.set(capability.Audio, audio)
	ctx := context.Background()

	if err := h.orch.SetDoNotDisturb(ctx, true); err != nil {
		t.Fatalf("SetDoNotDisturb: %v", err)
	}
	if err := h.orch.RingDoorbell(ctx, "button"); err != nil {
		t.Fatalf("RingDoorbell: %v", err)
	}

	waitFor(t, "RUN_ON_DOORBELL", func() bool { return h.commandCount("RUN_ON_DOORBELL") == 1 })
	if audio.CallCount() != 0 {
		t.Errorf("sound played under do-not-disturb")
	}
	if snap := h.snapshot(t); snap.LastDoorbell == nil {
		t.Error("LastDoorbell not recorded")
	}
	if v, _ := h.sink.Get(mirror.PathLastDoorbell); v == nil {
		t.Error("state/lastDoorbell not written")
	}
}

func TestOrchestrator_RemoteControl(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateAway)
	audio := &captest.Adapter{}
	h.caps.set(capability.Audio, audio)
	w := &watchedPath{}

	if err := h.orch.WatchControl(w); err != nil {
		t.Fatalf("WatchControl: %v", err)
	}

	// A notification while away is held until someone is home.
	w.deliver(t, mirror.PathHasNotification, "true")
	h.snapshot(t)
	if h.commandCount("NEW_NOTIFICATION") != 0 {
		t.Fatal("notification delivered while away")
	}

	w.deliver(t, ControlStatePath, `{"state":"home"}`)
	waitFor(t, "NEW_NOTIFICATION", func() bool { return h.commandCount("NEW_NOTIFICATION") == 1 })
	if v, _ := h.sink.Get(mirror.PathHasNotification); v != false {
		t.Errorf("hasNotification = %v, want reset to false", v)
	}

	w.deliver(t, ControlCommandPath, `{"command":"movie","modifier":"off"}`)
	waitFor(t, "MOVIE", func() bool { return h.commandCount("MOVIE") == 1 })
	if entry := h.commandEntries("MOVIE")[0]; entry["source"] != SourceRemote || entry["modifier"] != "OFF" {
		t.Errorf("remote entry = %v", entry)
	}

	w.deliver(t, ControlCommandPath, `not json`)
}

func TestOrchestrator_RemoteStatesApplyInArrivalOrder(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)
	w := &watchedPath{}
	if err := h.orch.WatchControl(w); err != nil {
		t.Fatalf("WatchControl: %v", err)
	}

	for i := 0; i < 20; i++ {
		w.deliver(t, ControlStatePath, `{"state":"ARMED"}`)
		w.deliver(t, ControlStatePath, `{"state":"HOME"}`)
	}

	waitFor(t, "state log", func() bool { return len(h.sink.Pushes(mirror.LogSystemState)) == 40 })

	entries := h.sink.Pushes(mirror.LogSystemState)
	for i, e := range entries {
		want := "ARMED"
		if i%2 == 1 {
			want = "HOME"
		}
		if got := e.(map[string]any)["state"]; got != want {
			t.Fatalf("log entry %d state = %v, want %s", i, got, want)
		}
	}
	snap := h.snapshot(t)
	if snap.SystemState != automation.StateHome || snap.ArmingPending {
		t.Errorf("final snapshot = %s pending=%v, want HOME with no arming timer", snap.SystemState, snap.ArmingPending)
	}
}

func TestOrchestrator_CapabilityChanges(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)
	audio := &captest.Adapter{}
	h.caps.set(capability.Audio, audio)

	var mu sync.Mutex
	var events []Event
	h.orch.SetOnEvent(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	h.orch.HandleEvent(capability.Event{Kind: capability.Thermostat, Name: capability.EventChange,
		Payload: capability.ThermostatReading{ID: "upstairs", Mode: "heat", Target: 20}})
	h.orch.CapabilityChanged(capability.Audio, true)
	h.orch.CapabilityChanged(capability.Thermostat, false)

	waitFor(t, "ready sound", func() bool { return audio.CallCount() == 1 })

	snap := h.snapshot(t)
	if len(snap.Thermostats) != 0 {
		t.Errorf("thermostat readings kept after demotion: %+v", snap.Thermostats)
	}
	if v, _ := h.sink.Get(mirror.ThermostatPath("upstairs")); v != nil {
		t.Errorf("state/thermostats/upstairs = %v, want cleared", v)
	}
	if v, ok := h.sink.Get(mirror.CapabilityPath("audio")); !ok || v != true {
		t.Errorf("audio capability = %v, %v", v, ok)
	}

	mu.Lock()
	defer mu.Unlock()
	var capEvents int
	for _, ev := range events {
		if ev.Type == EventCapabilityChanged {
			capEvents++
		}
	}
	if capEvents != 2 {
		t.Errorf("capability events = %d, want 2", capEvents)
	}
}

func TestOrchestrator_MeshNodeInventory(t *testing.T) {
	h := setupOrchestratorWith(t, homeConfig, Options{
		InitialState: automation.StateHome,
		NodeRefresh:  20 * time.Millisecond,
	})
	mesh := &captest.Adapter{}
	h.caps.set(capability.BinaryMesh, mesh)

	h.orch.CapabilityChanged(capability.BinaryMesh, true)
	waitFor(t, "repeated node requests", func() bool { return mesh.CallCount() >= 2 })
	if m := mesh.Calls()[0].Method; m != "RequestNodes" {
		t.Errorf("first mesh call = %s, want RequestNodes", m)
	}

	h.orch.HandleEvent(capability.Event{Kind: capability.BinaryMesh, Name: capability.EventChange,
		Payload: capability.NodeInventory{Nodes: []capability.MeshNode{{ID: "7", Name: "front door", Ready: true}}}})
	h.orch.HandleEvent(capability.Event{Kind: capability.BinaryMesh, Name: capability.EventChange,
		Payload: capability.DeviceState{Data: json.RawMessage(`{"controller":"ready"}`)}})
	h.snapshot(t)

	nodes, ok := h.sink.Get(mirror.PathMeshNodes)
	if list, isList := nodes.([]capability.MeshNode); !ok || !isList || len(list) != 1 || list[0].ID != "7" {
		t.Errorf("state/mesh/nodes = %#v", nodes)
	}
	if v, ok := h.sink.Get(mirror.DevicesPath("binary_mesh")); !ok || string(v.(json.RawMessage)) != `{"controller":"ready"}` {
		t.Errorf("state/devices/binary_mesh = %v", v)
	}

	h.orch.CapabilityChanged(capability.BinaryMesh, false)
	h.snapshot(t)

	if _, ok := h.sink.Get(mirror.PathMeshNodes); ok {
		t.Error("node inventory kept after the mesh went away")
	}
	if _, ok := h.sink.Get(mirror.DevicesPath("binary_mesh")); ok {
		t.Error("device state kept after the mesh went away")
	}
	calls := mesh.CallCount()
	time.Sleep(80 * time.Millisecond)
	if n := mesh.CallCount(); n != calls {
		t.Errorf("node requests continued after demotion: %d then %d", calls, n)
	}
}

func TestOrchestrator_ShutdownClearsNodeInventory(t *testing.T) {
	h := setupOrchestrator(t, homeConfig, automation.StateHome)

	h.orch.HandleEvent(capability.Event{Kind: capability.BinaryMesh, Name: capability.EventChange,
		Payload: capability.NodeInventory{Nodes: []capability.MeshNode{{ID: "9"}}}})
	h.snapshot(t)
	if _, ok := h.sink.Get(mirror.PathMeshNodes); !ok {
		t.Fatal("node inventory not mirrored")
	}

	h.stop()
	if _, ok := h.sink.Get(mirror.PathMeshNodes); ok {
		t.Error("node inventory left behind after shutdown")
	}
}

func TestOrchestrator_StoppedRejectsTriggers(t *testing.T) {
	reg := automation.NewRegistry(nil)
	orch := New(Options{}, reg, newFakeCaps(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go orch.Run(ctx) //nolint:errcheck // returns nil on cancel
	cancel()
	<-orch.Done()

	if err := orch.SetState(context.Background(), automation.StateHome); !errors.Is(err, ErrStopped) {
		t.Errorf("error = %v, want ErrStopped", err)
	}
}

func TestConfigWatcher_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "home.yaml")
	if err := os.WriteFile(path, []byte("commands:\n  one: []\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reg := automation.NewRegistry(nil)
	if err := reg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	w := NewConfigWatcher(path, reg, nil)
	w.settle = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx) //nolint:errcheck // returns nil on cancel

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("commands:\n  two: []\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	waitFor(t, "reload", func() bool {
		_, ok := reg.Snapshot().Command("TWO")
		return ok
	})
}

func TestWatchRemoteConfig(t *testing.T) {
	reg := automation.NewRegistry(nil)
	w := &watchedPath{}

	if err := WatchRemoteConfig(w, "config/home", reg, nil); err != nil {
		t.Fatalf("WatchRemoteConfig: %v", err)
	}

	w.deliver(t, "config/home", `{"commands": {"remote": []}}`)
	if _, ok := reg.Snapshot().Command("REMOTE"); !ok {
		t.Fatal("remote document not applied")
	}

	w.deliver(t, "config/home", `armingDelayMs: -5`)
	w.deliver(t, "config/home", ``)
	if _, ok := reg.Snapshot().Command("REMOTE"); !ok {
		t.Error("rejected document replaced the configuration")
	}
	if reg.Version() != 1 {
		t.Errorf("Version = %d, want 1", reg.Version())
	}
}
