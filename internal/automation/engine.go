package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-home/internal/capability"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-home/internal/mirror"
)

// defaultCallTimeout bounds a single adapter call. Adapters that hang are
// recorded as failed rather than holding the execution open.
const defaultCallTimeout = 30 * time.Second

// Capabilities is the engine's view of the adapter supervisor.
type Capabilities interface {
	// Adapter returns the adapter for kind while it is available.
	Adapter(kind capability.Kind) (capability.Adapter, bool)
}

// SystemHandler runs the sub-actions that change orchestrator state. It is
// called synchronously, on the goroutine that called Execute, so later
// sub-actions observe the change.
type SystemHandler interface {
	SetState(ctx context.Context, s SystemState) error
	SetDoNotDisturb(ctx context.Context, on bool) error
	DoNotDisturb() bool
}

// Engine executes plans.
//
// System sub-actions run inline. Capability sub-actions are checked for
// availability at the moment they are reached and launched on their own
// goroutine; no failure aborts the rest of the plan.
//
// Thread Safety: Execute is safe for concurrent use, but callers that rely
// on SystemHandler ordering must call it from one goroutine.
type Engine struct {
	caps    Capabilities
	system  SystemHandler
	sink    mirror.Sink
	logger  Logger
	metrics *metrics.Recorder
	timeout time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	onResult func(*ExecutionResult)
}

// NewEngine creates an engine.
//
// Parameters:
//   - caps: Adapter availability (usually *capability.Supervisor)
//   - system: Handler for SetState and SetDoNotDisturb (may be set later)
//   - sink: State mirror receiving a summary of every execution
//   - logger: Logger instance (nil for none)
func NewEngine(caps Capabilities, system SystemHandler, sink mirror.Sink, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	if sink == nil {
		sink = mirror.Discard
	}
	return &Engine{
		caps:    caps,
		system:  system,
		sink:    sink,
		logger:  logger,
		timeout: defaultCallTimeout,
		now:     time.Now,
	}
}

// SetSystemHandler sets the handler for system sub-actions. Must be called
// before the first Execute.
func (e *Engine) SetSystemHandler(h SystemHandler) {
	e.system = h
}

// SetMetrics sets the metrics recorder (nil disables).
func (e *Engine) SetMetrics(rec *metrics.Recorder) {
	e.metrics = rec
}

// SetCallTimeout overrides the per-adapter-call timeout.
func (e *Engine) SetCallTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// SetOnResult sets a callback invoked with every finished result.
func (e *Engine) SetOnResult(fn func(*ExecutionResult)) {
	e.mu.Lock()
	e.onResult = fn
	e.mu.Unlock()
}

// Execution is a running plan. Wait joins its adapter calls.
type Execution struct {
	engine *Engine
	result *ExecutionResult
	start  time.Time
	wg     sync.WaitGroup
	once   sync.Once
}

// Execute runs plan on behalf of source.
//
// It returns once every system sub-action has run and every capability
// sub-action has been launched. Nothing panics out of Execute.
func (e *Engine) Execute(ctx context.Context, plan *Plan, source string) *Execution {
	start := e.now()
	x := &Execution{
		engine: e,
		start:  start,
		result: &ExecutionResult{
			ID:           uuid.NewString(),
			Command:      plan.Command,
			Modifier:     plan.Modifier,
			Source:       source,
			Outcomes:     make([]Outcome, len(plan.Actions)),
			ByCapability: make(map[capability.Kind][]Outcome),
			StartedAt:    start.UTC(),
		},
	}

	e.logger.Debug("command execution started",
		"execution_id", x.result.ID,
		"command", plan.Command,
		"modifier", plan.Modifier,
		"source", source,
		"actions", len(plan.Actions),
	)

	for i, action := range plan.Actions {
		out := &x.result.Outcomes[i]
		out.Index = i
		out.Action = action.Name()
		out.Kind = action.Kind()
		if light, ok := action.(SetLightScene); ok {
			out.Degraded = light.Degraded
		}

		switch a := action.(type) {
		case SetState:
			e.runSystem(out, func() error { return e.system.SetState(ctx, a.State) })
			continue
		case SetDoNotDisturb:
			e.runSystem(out, func() error { return e.system.SetDoNotDisturb(ctx, a.Enabled) })
			continue
		case PlaySound:
			if !a.Force && e.system != nil && e.system.DoNotDisturb() {
				out.Status = OutcomeSkipped
				continue
			}
		}

		adapter, ok := e.caps.Adapter(action.Kind())
		if !ok || adapter == nil {
			out.Status = OutcomeUnavailable
			out.err = fmt.Errorf("%s: %w", action.Kind(), capability.ErrUnavailable)
			out.Error = out.err.Error()
			continue
		}

		x.wg.Add(1)
		go func(out *Outcome, action SubAction) {
			defer x.wg.Done()
			e.runAdapter(ctx, out, adapter, action)
		}(out, action)
	}
	return x
}

// runSystem runs a system sub-action inline, recovering panics.
func (e *Engine) runSystem(out *Outcome, fn func() error) {
	if e.system == nil {
		out.Status = OutcomeUnavailable
		out.err = fmt.Errorf("%s: %w", out.Kind, capability.ErrUnavailable)
		out.Error = out.err.Error()
		return
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	e.record(out, err)
}

func (e *Engine) runAdapter(ctx context.Context, out *Outcome, adapter capability.Adapter, action SubAction) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = invoke(ctx, adapter, action)
	}()
	if err != nil {
		err = &AdapterError{Kind: action.Kind(), Err: err}
	}
	e.record(out, err)
}

func (e *Engine) record(out *Outcome, err error) {
	if err == nil {
		out.Status = OutcomeDone
		return
	}
	out.Status = OutcomeFailed
	out.err = err
	out.Error = err.Error()
}

// invoke calls the adapter method for action.
func invoke(ctx context.Context, adapter capability.Adapter, action SubAction) error { //nolint:gocyclo // one case per sub-action type
	switch a := action.(type) {
	case SetLightScene:
		l, ok := adapter.(capability.LightingAdapter)
		if !ok {
			return capability.ErrUnsupported
		}
		var errs []error
		for _, group := range a.Lights {
			if err := l.SetLightState(ctx, group, a.State); err != nil {
				errs = append(errs, fmt.Errorf("group %s: %w", group, err))
			}
		}
		return errors.Join(errs...)

	case ActivateBridgeScene:
		l, ok := adapter.(capability.LightingAdapter)
		if !ok {
			return capability.ErrUnsupported
		}
		return l.ActivateScene(ctx, a.Group, a.Scene)

	case SetBinaryOutputs:
		m, ok := adapter.(capability.BinaryMeshAdapter)
		if !ok {
			return capability.ErrUnsupported
		}
		return m.SetOutputs(ctx, a.Outputs)

	case MeshAdmin:
		m, ok := adapter.(capability.BinaryMeshAdapter)
		if !ok {
			return capability.ErrUnsupported
		}
		return m.Admin(ctx, a.Operation)

	case ThermostatAdjust:
		t, ok := adapter.(capability.ThermostatAdapter)
		if !ok {
			return capability.ErrUnsupported
		}
		return t.SetTarget(ctx, a.Setting)

	case ActivateActivity:
		h, ok := adapter.(capability.ActivityHubAdapter)
		if !ok {
			return capability.ErrUnsupported
		}
		return h.StartActivity(ctx, a.Activity)

	case SendDeviceCommand:
		h, ok := adapter.(capability.ActivityHubAdapter)
		if !ok {
			return capability.ErrUnsupported
		}
		return h.SendCommand(ctx, a.Device, a.Command)

	case SetCameraEnabled:
		c, ok := adapter.(capability.CameraAdapter)
		if !ok {
			return capability.ErrUnsupported
		}
		return c.SetEnabled(ctx, a.Enabled)

	case PlaySound:
		s, ok := adapter.(capability.AudioAdapter)
		if !ok {
			return capability.ErrUnsupported
		}
		return s.Play(ctx, a.Sound)

	default:
		return fmt.Errorf("%w: %s", ErrInvalidAction, action.Name())
	}
}

// Wait blocks until every adapter call has returned, then finalises and
// returns the result. It is safe to call more than once; the summary is
// recorded only on the first call.
func (x *Execution) Wait() *ExecutionResult {
	x.wg.Wait()
	x.once.Do(func() {
		r := x.result
		r.Duration = x.engine.now().Sub(x.start)

		ok := x.engine.settled(r)
		if !ok {
			r.Status = StatusError
			r.Error = fmt.Sprintf("all %d sub-actions failed or were unavailable", len(r.Outcomes))
		} else {
			r.Status = StatusOK
		}
		for _, o := range r.Outcomes {
			r.ByCapability[o.Kind] = append(r.ByCapability[o.Kind], o)
		}
		x.engine.finish(r)
	})
	return x.result
}

// settled reports whether at least one sub-action completed or was skipped.
// An empty plan counts as settled.
func (e *Engine) settled(r *ExecutionResult) bool {
	if len(r.Outcomes) == 0 {
		return true
	}
	for _, o := range r.Outcomes {
		if o.Status == OutcomeDone || o.Status == OutcomeSkipped {
			return true
		}
	}
	return false
}

// Reject returns a finished error result for a command that could not be
// resolved, recorded like any other execution.
func (e *Engine) Reject(command, modifier, source string, err error) *ExecutionResult {
	r := &ExecutionResult{
		ID:           uuid.NewString(),
		Command:      normaliseName(command),
		Modifier:     normaliseName(modifier),
		Source:       source,
		Status:       StatusError,
		Error:        err.Error(),
		Outcomes:     []Outcome{},
		ByCapability: map[capability.Kind][]Outcome{},
		StartedAt:    e.now().UTC(),
	}
	e.finish(r)
	return r
}

func (e *Engine) finish(r *ExecutionResult) {
	for _, o := range r.Outcomes {
		e.metrics.Incr(metrics.SubActionOutcome,
			metrics.Tag("kind", string(o.Kind)),
			metrics.Tag("status", string(o.Status)),
		)
		if o.Status == OutcomeFailed {
			e.logger.Warn("sub-action failed",
				"execution_id", r.ID,
				"command", r.Command,
				"action", o.Action,
				"kind", o.Kind,
				"error", o.Error,
			)
		}
	}
	e.metrics.Incr(metrics.CommandExecuted, metrics.Tag("status", string(r.Status)))
	e.metrics.Timing(metrics.CommandDuration, r.Duration)

	e.sink.Push(mirror.LogCommands, map[string]any{
		"id":          r.ID,
		"command":     r.Command,
		"modifier":    r.Modifier,
		"source":      r.Source,
		"status":      string(r.Status),
		"error":       r.Error,
		"done":        r.Count(OutcomeDone),
		"failed":      r.Count(OutcomeFailed),
		"unavailable": r.Count(OutcomeUnavailable),
		"skipped":     r.Count(OutcomeSkipped),
		"duration_ms": r.Duration.Milliseconds(),
	})

	level := e.logger.Info
	if r.Status == StatusError {
		level = e.logger.Warn
	}
	level("command executed",
		"execution_id", r.ID,
		"command", r.Command,
		"modifier", r.Modifier,
		"source", r.Source,
		"status", r.Status,
		"error", r.Error,
		"done", r.Count(OutcomeDone),
		"failed", r.Count(OutcomeFailed),
		"unavailable", r.Count(OutcomeUnavailable),
		"skipped", r.Count(OutcomeSkipped),
		"duration_ms", r.Duration.Milliseconds(),
	)

	e.mu.RLock()
	fn := e.onResult
	e.mu.RUnlock()
	if fn != nil {
		fn(r)
	}
}
