// Package captest provides a recording capability adapter for tests.
package captest

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/capability"
)

// Call is one recorded adapter invocation.
type Call struct {
	Method string
	Args   []any
}

// Adapter implements every capability adapter interface and records calls.
//
// Err is returned from every operation; Panic makes every operation panic;
// Delay sleeps before returning (honouring ctx).
type Adapter struct {
	Err   error
	Panic bool
	Delay time.Duration

	mu     sync.Mutex
	calls  []Call
	closed int
}

var (
	_ capability.LightingAdapter    = (*Adapter)(nil)
	_ capability.ThermostatAdapter  = (*Adapter)(nil)
	_ capability.ActivityHubAdapter = (*Adapter)(nil)
	_ capability.BinaryMeshAdapter  = (*Adapter)(nil)
	_ capability.CameraAdapter      = (*Adapter)(nil)
	_ capability.AudioAdapter       = (*Adapter)(nil)
	_ capability.PresenceAdapter    = (*Adapter)(nil)
)

func (a *Adapter) record(ctx context.Context, method string, args ...any) error {
	a.mu.Lock()
	a.calls = append(a.calls, Call{Method: method, Args: args})
	a.mu.Unlock()

	if a.Panic {
		panic("captest: " + method)
	}
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return a.Err
}

// Calls returns a copy of the recorded calls.
func (a *Adapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// CallCount returns how many operations were invoked.
func (a *Adapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// Closed returns how many times Close was called.
func (a *Adapter) Closed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	a.closed++
	a.mu.Unlock()
	return nil
}

func (a *Adapter) SetLightState(ctx context.Context, group string, state capability.LightState) error {
	return a.record(ctx, "SetLightState", group, state)
}

func (a *Adapter) ActivateScene(ctx context.Context, group, scene string) error {
	return a.record(ctx, "ActivateScene", group, scene)
}

func (a *Adapter) SetTarget(ctx context.Context, setting capability.ThermostatSetting) error {
	return a.record(ctx, "SetTarget", setting)
}

func (a *Adapter) SetAway(ctx context.Context, away bool) error {
	return a.record(ctx, "SetAway", away)
}

func (a *Adapter) StartActivity(ctx context.Context, activity string) error {
	return a.record(ctx, "StartActivity", activity)
}

func (a *Adapter) SendCommand(ctx context.Context, device, command string) error {
	return a.record(ctx, "SendCommand", device, command)
}

func (a *Adapter) SetOutputs(ctx context.Context, outputs map[string]bool) error {
	return a.record(ctx, "SetOutputs", outputs)
}

func (a *Adapter) Admin(ctx context.Context, operation string) error {
	return a.record(ctx, "Admin", operation)
}

func (a *Adapter) RequestNodes(ctx context.Context) error {
	return a.record(ctx, "RequestNodes")
}

func (a *Adapter) SetEnabled(ctx context.Context, enabled bool) error {
	return a.record(ctx, "SetEnabled", enabled)
}

func (a *Adapter) Play(ctx context.Context, sound string) error {
	return a.record(ctx, "Play", sound)
}

// Factory returns a capability.Factory that hands out a. The emit func the
// supervisor passes is stored in *emit when emit is non-nil.
func Factory(a *Adapter, emit *capability.EmitFunc) capability.Factory {
	return func(_ context.Context, e capability.EmitFunc) (capability.Adapter, error) {
		if emit != nil {
			*emit = e
		}
		return a, nil
	}
}

// FailingFactory returns a factory that always fails with err.
func FailingFactory(err error) capability.Factory {
	return func(context.Context, capability.EmitFunc) (capability.Adapter, error) {
		return nil, err
	}
}
