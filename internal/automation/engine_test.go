package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

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

type fakeSystem struct {
	states   []SystemState
	dnd      bool
	stateErr error
	panicDND bool
}

func (f *fakeSystem) SetState(_ context.Context, s SystemState) error {
	f.states = append(f.states, s)
	return f.stateErr
}

func (f *fakeSystem) SetDoNotDisturb(_ context.Context, on bool) error {
	if f.panicDND {
		panic("dnd exploded")
	}
	f.dnd = on
	return nil
}

func (f *fakeSystem) DoNotDisturb() bool { return f.dnd }

// ─── Helper ─────────────────────────────────────────────────────────────────

func setupEngine(t *testing.T) (*Engine, *fakeCaps, *fakeSystem, *mirror.Memory) {
	t.Helper()
	caps := newFakeCaps()
	system := &fakeSystem{}
	sink := mirror.NewMemory()
	return NewEngine(caps, system, sink, nil), caps, system, sink
}

func plan(command string, actions ...SubAction) *Plan {
	return &Plan{Command: command, Actions: actions}
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestEngine_PartialFailureIsolation(t *testing.T) {
	engine, caps, _, sink := setupEngine(t)
	lights := &captest.Adapter{}
	mesh := &captest.Adapter{Err: errors.New("node unreachable")}
	caps.set(capability.Lighting, lights)
	caps.set(capability.BinaryMesh, mesh)
	// Thermostat deliberately not available.

	p := plan("EVENING",
		SetLightScene{Lights: []string{"living"}, Scene: "DIM", State: capability.LightState{On: true, Brightness: 60}},
		SetBinaryOutputs{Outputs: map[string]bool{"node-3": true}},
		ThermostatAdjust{Setting: capability.ThermostatSetting{ThermostatID: "upstairs", Mode: "heat"}},
	)

	result := engine.Execute(context.Background(), p, "test").Wait()

	if result.Status != StatusOK {
		t.Fatalf("Status = %s, want ok (%s)", result.Status, result.Error)
	}
	want := []OutcomeStatus{OutcomeDone, OutcomeFailed, OutcomeUnavailable}
	for i, o := range result.Outcomes {
		if o.Status != want[i] {
			t.Errorf("Outcomes[%d] = %s, want %s", i, o.Status, want[i])
		}
	}

	var adapterErr *AdapterError
	if !errors.As(result.Outcomes[1].Err(), &adapterErr) || adapterErr.Kind != capability.BinaryMesh {
		t.Errorf("failed outcome error = %v, want *AdapterError for binary_mesh", result.Outcomes[1].Err())
	}
	if !errors.Is(result.Outcomes[2].Err(), capability.ErrUnavailable) {
		t.Errorf("unavailable outcome error = %v", result.Outcomes[2].Err())
	}

	if len(result.ByCapability[capability.Lighting]) != 1 || len(result.ByCapability[capability.Thermostat]) != 1 {
		t.Errorf("ByCapability = %+v", result.ByCapability)
	}
	if lights.CallCount() != 1 {
		t.Errorf("lighting calls = %d, want 1", lights.CallCount())
	}
	if sink.Count("push", mirror.LogCommands) != 1 {
		t.Errorf("logs/commands pushes = %d, want 1", sink.Count("push", mirror.LogCommands))
	}
}

func TestEngine_AllFailedReportsError(t *testing.T) {
	engine, caps, _, _ := setupEngine(t)
	caps.set(capability.Lighting, &captest.Adapter{Err: errors.New("bridge offline")})

	p := plan("MOVIE",
		SetLightScene{Lights: []string{"living"}},
		ActivateActivity{Activity: "Watch TV"},
	)

	result := engine.Execute(context.Background(), p, "test").Wait()

	if result.Status != StatusError || result.Error == "" {
		t.Errorf("result = %s %q, want error", result.Status, result.Error)
	}
	if result.OK() {
		t.Error("OK() = true for an all-failed plan")
	}
}

func TestEngine_EmptyPlanIsOK(t *testing.T) {
	engine, _, _, _ := setupEngine(t)
	result := engine.Execute(context.Background(), plan("RUN_ON_HOME"), "SET_STATE").Wait()
	if result.Status != StatusOK {
		t.Errorf("Status = %s, want ok", result.Status)
	}
}

func TestEngine_PanicRecovered(t *testing.T) {
	engine, caps, _, _ := setupEngine(t)
	caps.set(capability.Audio, &captest.Adapter{Panic: true})
	caps.set(capability.Camera, &captest.Adapter{})

	p := plan("ALARM", PlaySound{Sound: "siren.mp3"}, SetCameraEnabled{Enabled: true})
	result := engine.Execute(context.Background(), p, "test").Wait()

	if result.Outcomes[0].Status != OutcomeFailed || result.Outcomes[1].Status != OutcomeDone {
		t.Errorf("outcomes = %+v", result.Outcomes)
	}
}

func TestEngine_SystemActionsRunInline(t *testing.T) {
	engine, caps, system, _ := setupEngine(t)
	audio := &captest.Adapter{}
	caps.set(capability.Audio, audio)

	p := plan("GOODNIGHT",
		SetDoNotDisturb{Enabled: true},
		PlaySound{Sound: "night.mp3"},
		PlaySound{Sound: "alarm.mp3", Force: true},
		SetState{State: StateArmed},
	)

	x := engine.Execute(context.Background(), p, "keypad")

	// System sub-actions have already run when Execute returns.
	if !system.dnd || len(system.states) != 1 || system.states[0] != StateArmed {
		t.Fatalf("system = %+v", system)
	}

	result := x.Wait()
	want := []OutcomeStatus{OutcomeDone, OutcomeSkipped, OutcomeDone, OutcomeDone}
	for i, o := range result.Outcomes {
		if o.Status != want[i] {
			t.Errorf("Outcomes[%d] (%s) = %s, want %s", i, o.Action, o.Status, want[i])
		}
	}

	calls := audio.Calls()
	if len(calls) != 1 || calls[0].Args[0] != "alarm.mp3" {
		t.Errorf("audio calls = %+v, want only the forced sound", calls)
	}
}

func TestEngine_SystemActionErrors(t *testing.T) {
	engine, _, system, _ := setupEngine(t)
	system.stateErr = errors.New("state machine busy")
	system.panicDND = true

	result := engine.Execute(context.Background(),
		plan("X", SetState{State: StateHome}, SetDoNotDisturb{Enabled: true}), "test").Wait()

	if result.Outcomes[0].Status != OutcomeFailed || result.Outcomes[1].Status != OutcomeFailed {
		t.Errorf("outcomes = %+v", result.Outcomes)
	}
	if result.Status != StatusError {
		t.Errorf("Status = %s, want error", result.Status)
	}
}

func TestEngine_NoSystemHandler(t *testing.T) {
	engine := NewEngine(newFakeCaps(), nil, nil, nil)
	result := engine.Execute(context.Background(), plan("X", SetState{State: StateAway}), "test").Wait()
	if result.Outcomes[0].Status != OutcomeUnavailable {
		t.Errorf("outcome = %s, want unavailable", result.Outcomes[0].Status)
	}
}

func TestEngine_CallTimeout(t *testing.T) {
	engine, caps, _, _ := setupEngine(t)
	engine.SetCallTimeout(20 * time.Millisecond)
	caps.set(capability.Camera, &captest.Adapter{Delay: time.Second})

	start := time.Now()
	result := engine.Execute(context.Background(), plan("CAM", SetCameraEnabled{Enabled: true}), "test").Wait()

	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Wait took %v, timeout not applied", time.Since(start))
	}
	if !errors.Is(result.Outcomes[0].Err(), context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", result.Outcomes[0].Err())
	}
}

func TestEngine_WaitIsIdempotent(t *testing.T) {
	engine, _, _, sink := setupEngine(t)

	var results int
	engine.SetOnResult(func(*ExecutionResult) { results++ })

	x := engine.Execute(context.Background(), plan("X"), "test")
	first := x.Wait()
	second := x.Wait()

	if first != second {
		t.Error("Wait returned different results")
	}
	if results != 1 || sink.Count("push", mirror.LogCommands) != 1 {
		t.Errorf("finished %d times, pushed %d times, want once", results, sink.Count("push", mirror.LogCommands))
	}
}

func TestEngine_Reject(t *testing.T) {
	engine, _, _, sink := setupEngine(t)
	err := &LookupError{Name: "NOPE", Err: ErrCommandNotFound}

	result := engine.Reject("nope", "", "api", err)

	if result.Status != StatusError || result.Command != "NOPE" || result.Error != err.Error() {
		t.Errorf("result = %+v", result)
	}
	entries := sink.Pushes(mirror.LogCommands)
	if len(entries) != 1 {
		t.Fatalf("pushes = %d, want 1", len(entries))
	}
	if entries[0].(map[string]any)["status"] != "error" {
		t.Errorf("entry = %v", entries[0])
	}
}

func TestEngine_UnsupportedAdapter(t *testing.T) {
	engine, caps, _, _ := setupEngine(t)
	caps.set(capability.Lighting, plainAdapter{})

	result := engine.Execute(context.Background(),
		plan("X", ActivateBridgeScene{Group: "1", Scene: "abc"}), "test").Wait()

	if !errors.Is(result.Outcomes[0].Err(), capability.ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", result.Outcomes[0].Err())
	}
}

type plainAdapter struct{}

func (plainAdapter) Close() error { return nil }
