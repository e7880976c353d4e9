package home

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/automation"
	"github.com/nerrad567/gray-logic-home/internal/capability"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-home/internal/mirror"
)

// Logger defines the logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Trigger sources set by the orchestrator itself.
const (
	SourceDoor        = "door"
	SourceMotion      = "motion"
	SourcePresence    = "presence"
	SourceAwayRefresh = "away_refresh"
	SourceStartup     = "startup"
	SourceNotify      = "notification"
)

const (
	defaultInboxSize = 256

	// thermostatCallTimeout bounds the away/home switch on state changes.
	thermostatCallTimeout = 30 * time.Second

	defaultNodeRefresh = 30 * time.Second
	nodeRequestTimeout = 10 * time.Second
)

// Event types published to SetOnEvent subscribers.
const (
	EventStateChanged      = "state.changed"
	EventDoorChanged       = "door.changed"
	EventCapabilityChanged = "capability.changed"
	EventCommandExecuted   = "command.executed"
)

// Event is a notification for dashboards.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Options configures an Orchestrator.
type Options struct {
	// InitialState is restored at startup without running hooks.
	// Defaults to AWAY.
	InitialState SystemState

	// InboxSize bounds queued triggers and adapter events.
	InboxSize int

	// Version is mirrored to state/version.
	Version string

	// NodeRefresh is how often the mesh node inventory is re-requested
	// while the mesh is available. Defaults to 30s.
	NodeRefresh time.Duration

	Logger  Logger
	Metrics *metrics.Recorder
}

// Orchestrator is the single dispatcher that owns system state.
//
// Every trigger (API, keypad, MQTT control topics, adapter events, timers)
// becomes a closure on one inbox consumed by Run. State, debounce entries,
// readings and timers are only touched there, so no locks guard them.
// Adapter calls run on their own goroutines and are joined off the loop.
type Orchestrator struct {
	opts     Options
	registry *automation.Registry
	resolver *automation.Resolver
	engine   *automation.Engine
	caps     automation.Capabilities
	sink     mirror.Sink
	logger   Logger
	metrics  *metrics.Recorder
	now      func() time.Time

	inbox   chan func(ctx context.Context)
	remote  chan func(ctx context.Context)
	done    chan struct{}
	running atomic.Bool

	// Owned by the dispatcher goroutine.
	state       *State
	machine     *StateMachine
	debounce    *Debouncer
	refresh     *time.Timer
	refreshGen  uint64
	nodes       *time.Timer
	nodesGen    uint64
	haveNodes   bool
	devices     map[capability.Kind]bool
	readyPlayed bool

	workers sync.WaitGroup

	mu      sync.RWMutex
	onEvent func(Event)
}

// New creates an orchestrator. Run must be started before adapters are
// initialised, since their events are delivered through the inbox.
func New(opts Options, registry *automation.Registry, caps automation.Capabilities, sink mirror.Sink) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	if opts.NodeRefresh <= 0 {
		opts.NodeRefresh = defaultNodeRefresh
	}
	if !opts.InitialState.Valid() {
		opts.InitialState = automation.StateAway
	}
	if sink == nil {
		sink = mirror.Discard
	}

	o := &Orchestrator{
		opts:     opts,
		registry: registry,
		resolver: automation.NewResolver(registry),
		caps:     caps,
		sink:     sink,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      time.Now,
		inbox:    make(chan func(ctx context.Context), opts.InboxSize),
		remote:   make(chan func(ctx context.Context), opts.InboxSize),
		done:     make(chan struct{}),
		state:    &State{System: opts.InitialState, Thermostats: make(map[string]capability.ThermostatReading)},
		debounce: NewDebouncer(),
		devices:  make(map[capability.Kind]bool),
	}

	o.engine = automation.NewEngine(caps, loopSystem{o}, sink, opts.Logger)
	o.engine.SetMetrics(opts.Metrics)
	o.engine.SetOnResult(func(r *automation.ExecutionResult) {
		o.emit(Event{Type: EventCommandExecuted, Data: r})
	})

	o.machine = NewStateMachine(o.state, sink, func() time.Duration {
		return o.registry.Snapshot().ArmingDelay
	}, MachineHooks{
		Post:           o.post,
		Dispatch:       o.dispatch,
		ThermostatAway: o.thermostatAway,
		Changed:        o.stateChanged,
	}, opts.Logger)
	o.machine.SetMetrics(opts.Metrics)

	return o
}

// Engine returns the plan executor.
func (o *Orchestrator) Engine() *automation.Engine {
	return o.engine
}

// Registry returns the configuration registry.
func (o *Orchestrator) Registry() *automation.Registry {
	return o.registry
}

// SetOnEvent sets the dashboard event callback. It is called from the
// dispatcher goroutine and from execution waiters, and must not block.
func (o *Orchestrator) SetOnEvent(fn func(Event)) {
	o.mu.Lock()
	o.onEvent = fn
	o.mu.Unlock()
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.RLock()
	fn := o.onEvent
	o.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Run consumes the inbox until ctx is cancelled. It returns after pending
// adapter calls have been joined.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("home: orchestrator already running")
	}
	defer close(o.done)

	o.startup()

	o.workers.Add(1)
	go o.drainRemote(ctx)

	for {
		select {
		case fn := <-o.inbox:
			o.safely(ctx, fn)
		case <-ctx.Done():
			o.machine.Stop()
			o.stopRefresh()
			o.stopNodeRefresh()
			o.clearNodes()
			o.workers.Wait()
			o.logger.Info("orchestrator stopped")
			return nil
		}
	}
}

// Done is closed when Run has returned.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) startup() {
	now := o.now()
	o.sink.Set(mirror.PathStarted, now.UTC().Format(time.RFC3339))
	o.sink.Set(mirror.PathVersion, o.opts.Version)
	o.sink.Set(mirror.PathDoNotDisturb, false)

	o.machine.Restore(o.state.System)
	if o.state.System == automation.StateAway {
		o.startRefresh()
	}

	cfg := o.registry.Snapshot()
	o.logger.Info("orchestrator started",
		"state", o.state.System,
		"commands", len(cfg.Commands),
		"sensors", len(cfg.Sensors),
		"arming_delay", cfg.ArmingDelay,
	)
}

func (o *Orchestrator) safely(ctx context.Context, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("dispatcher task panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn(ctx)
}

// post queues fn without waiting for it. Never call from the loop.
func (o *Orchestrator) post(fn func(ctx context.Context)) {
	select {
	case o.inbox <- fn:
	case <-o.done:
	}
}

// do runs fn on the loop and waits for it to return. A task that panics
// returns ErrTaskFailed.
func (o *Orchestrator) do(ctx context.Context, fn func(loopCtx context.Context)) error {
	finished := make(chan struct{})
	completed := false
	task := func(loopCtx context.Context) {
		defer close(finished)
		fn(loopCtx)
		completed = true
	}

	select {
	case o.inbox <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrStopped
	}

	select {
	case <-finished:
		if !completed {
			return ErrTaskFailed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrStopped
	}
}

// ─── Triggers ───────────────────────────────────────────────────────────────

// ExecuteCommandByName resolves and runs a named command.
//
// Unknown commands (and chains past the recursion limit) return an error
// result together with the *automation.LookupError. Adapter failures never
// produce an error here; they are in the result. The result is nil only when
// ctx ends or the orchestrator stops first.
func (o *Orchestrator) ExecuteCommandByName(ctx context.Context, name, modifier, source string) (*automation.ExecutionResult, error) {
	var (
		x         *automation.Execution
		rejected  *automation.ExecutionResult
		lookupErr error
	)
	err := o.do(ctx, func(loopCtx context.Context) {
		x, rejected, lookupErr = o.execute(loopCtx, name, modifier, source)
	})
	if errors.Is(err, ErrTaskFailed) {
		return o.engine.Reject(name, modifier, source, err), err
	}
	if err != nil {
		return nil, err
	}
	if x == nil {
		return rejected, lookupErr
	}
	return x.Wait(), nil
}

// HandleKeyEntry runs the command bound to a keypad key.
func (o *Orchestrator) HandleKeyEntry(ctx context.Context, key, modifier, source string) (*automation.ExecutionResult, error) {
	name, ok := o.registry.Snapshot().KeyCommand(key)
	if !ok {
		err := &automation.LookupError{Name: strings.ToUpper(key), Err: ErrKeyNotBound}
		return o.engine.Reject(key, modifier, source, err), err
	}
	return o.ExecuteCommandByName(ctx, name, modifier, source)
}

// SetState changes the system state.
func (o *Orchestrator) SetState(ctx context.Context, s SystemState) error {
	var stateErr error
	if err := o.do(ctx, func(loopCtx context.Context) {
		stateErr = o.machine.SetState(loopCtx, s)
	}); err != nil {
		return err
	}
	return stateErr
}

// SetDoNotDisturb turns do-not-disturb on or off.
func (o *Orchestrator) SetDoNotDisturb(ctx context.Context, on bool) error {
	return o.do(ctx, func(context.Context) {
		o.setDoNotDisturb(on)
	})
}

// RingDoorbell records a doorbell press and runs RUN_ON_DOORBELL.
func (o *Orchestrator) RingDoorbell(ctx context.Context, source string) error {
	return o.do(ctx, func(loopCtx context.Context) {
		now := o.now()
		o.state.LastDoorbell = now
		o.sink.Set(mirror.PathLastDoorbell, now.UTC().Format(time.RFC3339))
		o.emit(Event{Type: EventStateChanged, Data: map[string]any{"lastDoorbell": now.UTC()}})
		o.dispatch(loopCtx, "RUN_ON_DOORBELL", "", source)
	})
}

// HandleDoorEvent reports a door value directly (bypassing the mesh).
func (o *Orchestrator) HandleDoorEvent(ctx context.Context, name, value string, driveStateTransition bool) error {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value != DoorOpen && value != DoorClosed {
		return fmt.Errorf("%w: %q", ErrInvalidDoorValue, value)
	}
	return o.do(ctx, func(loopCtx context.Context) {
		o.handleDoor(loopCtx, strings.ToUpper(name), value, driveStateTransition)
	})
}

// HandleEvent queues an adapter event. Use as the supervisor's forward func.
func (o *Orchestrator) HandleEvent(ev capability.Event) {
	o.post(func(loopCtx context.Context) {
		o.handleEvent(loopCtx, ev)
	})
}

// CapabilityChanged mirrors a capability's availability. Use as the
// supervisor's change callback.
func (o *Orchestrator) CapabilityChanged(kind capability.Kind, available bool) {
	o.post(func(loopCtx context.Context) {
		o.capabilityChanged(loopCtx, kind, available)
	})
}

// Snapshot returns a copy of the live state.
func (o *Orchestrator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := o.do(ctx, func(context.Context) {
		snap = Snapshot{
			SystemState:   o.state.System,
			ArmingPending: o.machine.ArmingPending(),
			DoNotDisturb:  o.state.DoNotDisturb,
			Presence:      append([]string{}, o.state.Presence...),
			Activity:      o.state.Activity,
			Doors:         o.debounce.WithPrefix(doorKeyPrefix),
			ConfigVersion: o.registry.Version(),
		}
		if len(o.state.Thermostats) > 0 {
			snap.Thermostats = maps.Clone(o.state.Thermostats)
		}
		if !o.state.LastDoorbell.IsZero() {
			t := o.state.LastDoorbell.UTC()
			snap.LastDoorbell = &t
		}
	})
	return snap, err
}

// ─── Loop internals ─────────────────────────────────────────────────────────

func (o *Orchestrator) readings() automation.Readings {
	return loopReadings{o.state}
}

// execute resolves name and starts it. On lookup failure it returns the
// rejected result instead.
func (o *Orchestrator) execute(ctx context.Context, name, modifier, source string) (*automation.Execution, *automation.ExecutionResult, error) {
	next, err := automation.Descend(ctx, name)
	if err != nil {
		return nil, o.engine.Reject(name, modifier, source, err), err
	}
	plan, err := o.resolver.Resolve(name, modifier, o.readings())
	if err != nil {
		return nil, o.engine.Reject(name, modifier, source, err), err
	}
	return o.engine.Execute(next, plan, source), nil, nil
}

// dispatch runs a synthetic command (state hooks, doors, sensors). A
// command that is simply not configured is not an error.
func (o *Orchestrator) dispatch(ctx context.Context, name, modifier, source string) {
	next, err := automation.Descend(ctx, name)
	if err != nil {
		o.engine.Reject(name, modifier, source, err)
		return
	}

	plan, err := o.resolver.Resolve(name, modifier, o.readings())
	if errors.Is(err, automation.ErrCommandNotFound) {
		o.logger.Debug("no command configured", "command", name, "source", source)
		return
	}
	if err != nil {
		o.engine.Reject(name, modifier, source, err)
		return
	}

	o.await(o.engine.Execute(next, plan, source))
}

// await joins x off the loop.
func (o *Orchestrator) await(x *automation.Execution) {
	o.workers.Add(1)
	go func() {
		defer o.workers.Done()
		x.Wait()
	}()
}

func (o *Orchestrator) setDoNotDisturb(on bool) {
	if o.state.DoNotDisturb == on {
		return
	}
	o.state.DoNotDisturb = on
	o.sink.Set(mirror.PathDoNotDisturb, on)
	o.logger.Info("do-not-disturb changed", "enabled", on)
	o.emit(Event{Type: EventStateChanged, Data: map[string]any{"doNotDisturb": on}})
}

func (o *Orchestrator) stateChanged(ctx context.Context, prev, next SystemState) {
	o.emit(Event{Type: EventStateChanged, Data: map[string]any{
		"systemState": string(next),
		"previous":    string(prev),
	}})

	if next == automation.StateAway {
		o.startRefresh()
	} else {
		o.stopRefresh()
	}

	if next == automation.StateHome && o.state.HasNotification {
		o.deliverNotification(ctx)
	}
}

func (o *Orchestrator) thermostatAway(_ context.Context, away bool) {
	adapter, ok := o.caps.Adapter(capability.Thermostat)
	if !ok {
		o.logger.Debug("thermostat unavailable, away mode not changed", "away", away)
		return
	}
	t, ok := adapter.(capability.ThermostatAdapter)
	if !ok {
		return
	}
	o.callAdapter("thermostat away", thermostatCallTimeout, func(ctx context.Context) error {
		return t.SetAway(ctx, away)
	})
}

// callAdapter runs fn off the loop. Run joins it on shutdown.
func (o *Orchestrator) callAdapter(what string, timeout time.Duration, fn func(ctx context.Context) error) {
	o.workers.Add(1)
	go func() {
		defer o.workers.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("adapter call panicked", "call", what, "panic", fmt.Sprint(r))
			}
		}()
		if err := fn(ctx); err != nil {
			o.logger.Warn("adapter call failed", "call", what, "error", err)
		}
	}()
}

// ─── Mesh node inventory ────────────────────────────────────────────────────

// startNodeRefresh requests the node inventory now and again every
// NodeRefresh while the mesh stays available.
func (o *Orchestrator) startNodeRefresh() {
	o.stopNodeRefresh()
	o.requestNodes()

	gen := o.nodesGen
	o.nodes = time.AfterFunc(o.opts.NodeRefresh, func() {
		o.post(func(context.Context) {
			if gen != o.nodesGen {
				return
			}
			o.nodes = nil
			o.startNodeRefresh()
		})
	})
}

func (o *Orchestrator) stopNodeRefresh() {
	o.nodesGen++
	if o.nodes != nil {
		o.nodes.Stop()
		o.nodes = nil
	}
}

func (o *Orchestrator) requestNodes() {
	adapter, ok := o.caps.Adapter(capability.BinaryMesh)
	if !ok {
		return
	}
	mesh, ok := adapter.(capability.BinaryMeshAdapter)
	if !ok {
		return
	}
	o.callAdapter("mesh nodes", nodeRequestTimeout, mesh.RequestNodes)
}

func (o *Orchestrator) clearNodes() {
	if o.haveNodes {
		o.haveNodes = false
		o.sink.Set(mirror.PathMeshNodes, nil)
	}
}

// ─── Away refresh ───────────────────────────────────────────────────────────

// startRefresh schedules the next RUN_ON_AWAY re-dispatch.
func (o *Orchestrator) startRefresh() {
	o.stopRefresh()
	interval := o.registry.Snapshot().AwayRefresh
	if interval <= 0 {
		return
	}
	gen := o.refreshGen
	o.refresh = time.AfterFunc(interval, func() {
		o.post(func(ctx context.Context) {
			if gen != o.refreshGen {
				return
			}
			o.refresh = nil
			if o.state.System != automation.StateAway {
				return
			}
			o.dispatch(ctx, "RUN_ON_AWAY", "", SourceAwayRefresh)
			o.startRefresh()
		})
	})
}

func (o *Orchestrator) stopRefresh() {
	o.refreshGen++
	if o.refresh != nil {
		o.refresh.Stop()
		o.refresh = nil
	}
}

// loopSystem is the engine's SystemHandler. The engine calls it on the
// goroutine that called Execute, which is always the loop.
type loopSystem struct {
	o *Orchestrator
}

func (s loopSystem) SetState(ctx context.Context, st automation.SystemState) error {
	return s.o.machine.SetState(ctx, st)
}

func (s loopSystem) SetDoNotDisturb(_ context.Context, on bool) error {
	s.o.setDoNotDisturb(on)
	return nil
}

func (s loopSystem) DoNotDisturb() bool {
	return s.o.state.DoNotDisturb
}
