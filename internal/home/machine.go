package home

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/nerrad567/gray-logic-home/internal/automation"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-home/internal/mirror"
)

// SourceStateMachine is the source of RUN_ON_<STATE> dispatches.
const SourceStateMachine = "SET_STATE"

// logTimeLayout is the human-readable timestamp in state log entries.
const logTimeLayout = "Mon 2 Jan 2006 15:04:05"

// MachineHooks connects the state machine to the orchestrator.
type MachineHooks struct {
	// Post runs fn on the dispatcher goroutine. Used by the arming timer.
	Post func(fn func(ctx context.Context))

	// Dispatch resolves and executes a command on the dispatcher goroutine.
	Dispatch func(ctx context.Context, name, modifier, source string)

	// ThermostatAway switches the thermostat between away and home mode.
	ThermostatAway func(ctx context.Context, away bool)

	// Changed is called after a real transition, before the hook command.
	Changed func(ctx context.Context, prev, next SystemState)
}

// State chart ids. Each event is named after the state it moves to.
const (
	chartID = "home"

	actionRecord = "recordTransition"
	actionEnter  = "queueStateHooks"
)

// transition is the payload of every chart event.
type transition struct {
	ctx  context.Context
	prev SystemState
	next SystemState
	at   time.Time
}

// newHomeChart builds HOME, AWAY and ARMED with a transition from each to
// the other two. Entry actions only act on events carrying a transition,
// so Start and Restore enter a state silently.
func newHomeChart() (*statekit.MachineConfig[*StateMachine], error) {
	b := statekit.NewMachine[*StateMachine](chartID).
		WithInitial(statekit.StateID(automation.StateAway)).
		WithAction(actionRecord, recordTransition).
		WithAction(actionEnter, queueStateHooks)

	for _, from := range []SystemState{automation.StateHome, automation.StateAway, automation.StateArmed} {
		x, y := otherStates(from)
		b = b.State(statekit.StateID(from)).
			OnEntry(actionEnter).
			On(statekit.EventType(x)).Target(statekit.StateID(x)).Do(actionRecord).
			On(statekit.EventType(y)).Target(statekit.StateID(y)).Do(actionRecord).
			Done()
	}
	return b.Build()
}

func recordTransition(mp **StateMachine, ev statekit.Event) {
	t, ok := ev.Payload.(transition)
	if !ok || mp == nil || *mp == nil {
		return
	}
	m := *mp

	m.state.System = t.next
	m.sink.Set(mirror.PathSystemState, string(t.next))
	m.sink.Push(mirror.LogSystemState, map[string]any{
		"state":    string(t.next),
		"previous": string(t.prev),
		"time":     t.at.Format(logTimeLayout),
	})
	m.metrics.Gauge(metrics.SystemState, 0, metrics.Tag("state", string(t.prev)))
	m.metrics.Gauge(metrics.SystemState, 1, metrics.Tag("state", string(t.next)))

	m.logger.Info("system state changed", "from", t.prev, "to", t.next)
}

// queueStateHooks defers the entry hooks until Send has returned, since a
// hook command may itself change state.
func queueStateHooks(mp **StateMachine, ev statekit.Event) {
	t, ok := ev.Payload.(transition)
	if !ok || mp == nil || *mp == nil {
		return
	}
	(*mp).entered = append((*mp).entered, t)
}

func otherStates(s SystemState) (SystemState, SystemState) {
	switch s {
	case automation.StateHome:
		return automation.StateAway, automation.StateArmed
	case automation.StateAway:
		return automation.StateHome, automation.StateArmed
	default:
		return automation.StateHome, automation.StateAway
	}
}

// StateMachine owns the system state and the arming timer. All methods
// must be called on the dispatcher goroutine.
//
// Transitions and their entry hooks live in a statekit chart; the arming
// timer sits outside it and feeds AWAY back in as an ordinary transition.
type StateMachine struct {
	state   *State
	sink    mirror.Sink
	hooks   MachineHooks
	delay   func() time.Duration
	logger  Logger
	metrics *metrics.Recorder
	now     func() time.Time

	interp  *statekit.Interpreter[*StateMachine]
	entered []transition

	timer      *time.Timer
	generation uint64
}

// NewStateMachine creates a machine over state. delay returns the current
// arming delay; it is read each time the machine arms.
func NewStateMachine(state *State, sink mirror.Sink, delay func() time.Duration, hooks MachineHooks, logger Logger) *StateMachine {
	if logger == nil {
		logger = noopLogger{}
	}
	m := &StateMachine{
		state:  state,
		sink:   sink,
		hooks:  hooks,
		delay:  delay,
		logger: logger,
		now:    time.Now,
	}

	chart, err := newHomeChart()
	if err != nil {
		// The chart is static; a build error is a programming error.
		panic(fmt.Sprintf("home: building state chart: %v", err))
	}
	m.interp = statekit.NewInterpreter(chart)
	m.interp.UpdateContext(func(c **StateMachine) { *c = m })
	m.interp.Start()
	m.restoreChart(state.System)
	return m
}

// State returns the current system state.
func (m *StateMachine) State() SystemState {
	return m.state.System
}

// ArmingPending reports whether an arming timer is live.
func (m *StateMachine) ArmingPending() bool {
	return m.timer != nil
}

// SetState moves the machine to next.
//
// Any pending arming timer is cancelled first; ARMED then starts a fresh
// one, so re-arming restarts the countdown. Setting the current state again
// logs a warning and does nothing else.
func (m *StateMachine) SetState(ctx context.Context, next SystemState) error {
	if !next.Valid() {
		return automation.ErrInvalidState
	}

	m.cancelTimer()
	if next == automation.StateArmed {
		m.startTimer()
	}

	prev := m.state.System
	if prev == next {
		m.logger.Warn("system state unchanged", "state", next)
		return nil
	}

	m.interp.Send(statekit.Event{
		Type:    statekit.EventType(next),
		Payload: transition{ctx: ctx, prev: prev, next: next, at: m.now()},
	})
	if !m.interp.Matches(statekit.StateID(next)) {
		return fmt.Errorf("%w: chart did not move from %s to %s", automation.ErrInvalidState, prev, next)
	}

	entered := m.entered
	m.entered = nil
	for _, t := range entered {
		m.runStateHooks(t)
	}
	return nil
}

// runStateHooks runs the thermostat, change and RUN_ON_<STATE> hooks for a
// state the chart has entered.
func (m *StateMachine) runStateHooks(t transition) {
	if m.hooks.ThermostatAway != nil {
		m.hooks.ThermostatAway(t.ctx, t.next.Away())
	}
	if m.hooks.Changed != nil {
		m.hooks.Changed(t.ctx, t.prev, t.next)
	}
	if m.hooks.Dispatch != nil {
		m.hooks.Dispatch(t.ctx, "RUN_ON_"+string(t.next), "", SourceStateMachine)
	}
}

// Restore sets the initial state at startup without running hooks. ARMED
// starts the arming timer.
func (m *StateMachine) Restore(s SystemState) {
	m.restoreChart(s)
	m.state.System = s
	m.sink.Set(mirror.PathSystemState, string(s))
	m.metrics.Gauge(metrics.SystemState, 1, metrics.Tag("state", string(s)))
	if s == automation.StateArmed {
		m.startTimer()
	}
}

func (m *StateMachine) restoreChart(s SystemState) {
	if !s.Valid() || m.interp.Matches(statekit.StateID(s)) {
		return
	}
	err := m.interp.Restore(statekit.Snapshot[*StateMachine]{
		MachineID:    chartID,
		CurrentState: statekit.StateID(s),
		Context:      m,
		CreatedAt:    m.now(),
	})
	if err != nil {
		m.logger.Error("restoring state chart", "state", s, "error", err)
	}
}

// Stop cancels the arming timer.
func (m *StateMachine) Stop() {
	m.cancelTimer()
}

func (m *StateMachine) cancelTimer() {
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *StateMachine) startTimer() {
	delay := m.delay()
	if delay <= 0 {
		delay = automation.DefaultArmingDelay
	}
	gen := m.generation

	m.logger.Debug("arming timer started", "delay", delay)
	m.timer = time.AfterFunc(delay, func() {
		m.hooks.Post(func(ctx context.Context) {
			// A cancel (or restart) that raced the fire bumps the generation.
			if gen != m.generation {
				return
			}
			m.timer = nil
			m.logger.Info("arming delay elapsed")
			if err := m.SetState(ctx, automation.StateAway); err != nil {
				m.logger.Error("arming failed", "error", err)
			}
		})
	})
}

// SetMetrics sets the metrics recorder.
func (m *StateMachine) SetMetrics(rec *metrics.Recorder) {
	m.metrics = rec
}
