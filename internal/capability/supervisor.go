package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/metrics"
)

// Logger defines the logging interface used by the Supervisor.
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

// Factory constructs an adapter. Events the adapter emits must go through
// emit, including any emitted while the factory is still running.
type Factory func(ctx context.Context, emit EmitFunc) (Adapter, error)

// Registration describes one supervised kind.
type Registration struct {
	Kind    Kind
	Factory Factory

	// FatalEvents overrides DefaultFatalEvents[Kind] when non-nil.
	FatalEvents []string
}

// Status is a point-in-time view of one kind.
type Status struct {
	Kind        Kind      `json:"kind"`
	Available   bool      `json:"available"`
	Constructed bool      `json:"constructed"`
	Demoted     bool      `json:"demoted"`
	LastError   string    `json:"last_error,omitempty"`
	Since       time.Time `json:"since,omitempty"`
}

type entry struct {
	reg         Registration
	fatal       map[string]bool
	adapter     Adapter
	ready       bool
	constructed bool
	demoted     bool
	lastErr     string
	since       time.Time
}

// Supervisor owns adapter construction, availability and demotion.
//
// All methods are safe for concurrent use. IsAvailable never blocks on
// adapter I/O.
type Supervisor struct {
	mu      sync.RWMutex
	entries map[Kind]*entry

	forward  EmitFunc
	onChange func(kind Kind, available bool)
	logger   Logger
	metrics  *metrics.Recorder
	now      func() time.Time
}

// NewSupervisor creates a Supervisor that forwards every adapter event to
// forward after applying demotion.
func NewSupervisor(forward EmitFunc, logger Logger) *Supervisor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Supervisor{
		entries: make(map[Kind]*entry),
		forward: forward,
		logger:  logger,
		now:     time.Now,
	}
}

// SetMetrics sets the metrics recorder (nil disables).
func (s *Supervisor) SetMetrics(rec *metrics.Recorder) {
	s.metrics = rec
}

// SetOnChange sets a callback invoked after a kind becomes available or
// unavailable. It runs on the goroutine that caused the change.
func (s *Supervisor) SetOnChange(fn func(kind Kind, available bool)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Register adds a kind. Must be called before Init for that kind.
func (s *Supervisor) Register(reg Registration) error {
	if !reg.Kind.Valid() {
		return fmt.Errorf("capability: unknown kind %q", reg.Kind)
	}
	if reg.Factory == nil {
		return fmt.Errorf("capability: %s: factory is nil", reg.Kind)
	}

	names := reg.FatalEvents
	if names == nil {
		names = DefaultFatalEvents[reg.Kind]
	}
	fatal := map[string]bool{EventFatal: true}
	for _, n := range names {
		fatal[n] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[reg.Kind]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, reg.Kind)
	}
	s.entries[reg.Kind] = &entry{reg: reg, fatal: fatal}
	return nil
}

// Init constructs the adapter for kind. A kind is constructed at most once
// per process; a failed or demoted kind stays unavailable.
func (s *Supervisor) Init(ctx context.Context, kind Kind) error {
	s.mu.Lock()
	e, ok := s.entries[kind]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, kind)
	}
	if e.constructed {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyInitialised, kind)
	}
	e.constructed = true
	s.mu.Unlock()

	adapter, err := e.reg.Factory(ctx, s.emitter(kind))

	s.mu.Lock()
	e.since = s.now()
	if err != nil {
		e.lastErr = err.Error()
		s.mu.Unlock()
		s.logger.Warn("capability init failed", "kind", kind, "error", err)
		s.changed(kind, false)
		return fmt.Errorf("initialising %s: %w", kind, err)
	}
	if e.demoted {
		s.mu.Unlock()
		s.closeAdapter(kind, adapter)
		return fmt.Errorf("%w: %s demoted during init", ErrUnavailable, kind)
	}
	e.adapter = adapter
	e.ready = true
	s.mu.Unlock()

	s.logger.Info("capability ready", "kind", kind)
	s.changed(kind, true)
	return nil
}

// InitAll initialises every registered kind. Failures are logged and
// leave that kind unavailable; the rest continue.
func (s *Supervisor) InitAll(ctx context.Context) {
	for _, kind := range s.Kinds() {
		if err := s.Init(ctx, kind); err != nil && !errors.Is(err, ErrAlreadyInitialised) {
			s.logger.Warn("capability unavailable after init", "kind", kind, "error", err)
		}
	}
}

// Kinds returns the registered kinds, sorted.
func (s *Supervisor) Kinds() []Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]Kind, 0, len(s.entries))
	for k := range s.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (s *Supervisor) emitter(kind Kind) EmitFunc {
	return func(ev Event) {
		ev.Kind = kind
		if ev.At.IsZero() {
			ev.At = s.now()
		}
		s.HandleEvent(ev)
		if s.forward != nil {
			s.forward(ev)
		}
	}
}

// HandleEvent demotes ev.Kind when ev.Name is one of its fatal events.
// Returns true when this call demoted the kind.
func (s *Supervisor) HandleEvent(ev Event) bool {
	s.mu.Lock()
	e, ok := s.entries[ev.Kind]
	if !ok || !e.fatal[ev.Name] || e.demoted {
		s.mu.Unlock()
		return false
	}

	wasReady := e.ready
	adapter := e.adapter
	e.demoted = true
	e.ready = false
	e.adapter = nil
	e.since = s.now()
	e.lastErr = ev.Name
	if ev.Err != nil {
		e.lastErr = ev.Name + ": " + ev.Err.Error()
	}
	s.mu.Unlock()

	s.logger.Error("capability demoted", "kind", ev.Kind, "event", ev.Name, "error", ev.Err)

	// Fatal events usually arrive on the adapter's own callback goroutine,
	// which Close may need to wait on.
	if adapter != nil {
		go s.closeAdapter(ev.Kind, adapter)
	}
	if wasReady {
		s.changed(ev.Kind, false)
	}
	return true
}

// Shutdown releases the adapter for kind. Safe to call any number of times.
func (s *Supervisor) Shutdown(kind Kind) error {
	s.mu.Lock()
	e, ok := s.entries[kind]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	adapter := e.adapter
	wasReady := e.ready
	e.adapter = nil
	e.ready = false
	s.mu.Unlock()

	if wasReady {
		s.changed(kind, false)
	}
	if adapter == nil {
		return nil
	}
	if err := adapter.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", kind, err)
	}
	return nil
}

// ShutdownAll releases every adapter.
func (s *Supervisor) ShutdownAll() error {
	var errs []error
	for _, kind := range s.Kinds() {
		if err := s.Shutdown(kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsAvailable reports whether kind can be called right now.
func (s *Supervisor) IsAvailable(kind Kind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[kind]
	return ok && e.ready
}

// Adapter returns the adapter for kind while it is available.
func (s *Supervisor) Adapter(kind Kind) (Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[kind]
	if !ok || !e.ready {
		return nil, false
	}
	return e.adapter, true
}

// Statuses returns the status of every registered kind, sorted by kind.
func (s *Supervisor) Statuses() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Status, 0, len(s.entries))
	for kind, e := range s.entries {
		out = append(out, Status{
			Kind:        kind,
			Available:   e.ready,
			Constructed: e.constructed,
			Demoted:     e.demoted,
			LastError:   e.lastErr,
			Since:       e.since,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (s *Supervisor) changed(kind Kind, available bool) {
	v := 0.0
	if available {
		v = 1
	}
	s.metrics.Gauge(metrics.CapabilityAvailable, v, metrics.Tag("kind", string(kind)))

	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn(kind, available)
	}
}

func (s *Supervisor) closeAdapter(kind Kind, adapter Adapter) {
	if err := adapter.Close(); err != nil {
		s.logger.Warn("closing demoted adapter failed", "kind", kind, "error", err)
	}
}
