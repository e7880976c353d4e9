package automation

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Logger defines the logging interface used by the Registry and Engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds the current configuration snapshot.
//
// Readers take one snapshot with Snapshot and use it for the whole
// operation; Replace swaps the pointer atomically, so a reload never
// changes a configuration mid-resolution.
//
// All public methods are thread-safe.
type Registry struct {
	current atomic.Pointer[HomeConfig]
	version atomic.Uint64
	logger  Logger

	mu        sync.Mutex
	onReplace []func(*HomeConfig)
}

// NewRegistry creates a registry holding cfg, or an empty configuration
// when cfg is nil. cfg is validated like a parsed document.
func NewRegistry(cfg *HomeConfig) *Registry {
	if cfg == nil {
		cfg = NewHomeConfig()
	}
	r := &Registry{logger: noopLogger{}}
	r.current.Store(cfg.validated())
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Snapshot returns the current configuration. Callers must not modify it.
func (r *Registry) Snapshot() *HomeConfig {
	return r.current.Load()
}

// Version increments on every Replace.
func (r *Registry) Version() uint64 {
	return r.version.Load()
}

// OnReplace registers fn to run after every Replace, on the replacing
// goroutine.
func (r *Registry) OnReplace(fn func(*HomeConfig)) {
	r.mu.Lock()
	r.onReplace = append(r.onReplace, fn)
	r.mu.Unlock()
}

// Replace swaps in a new configuration wholesale. Invalid commands in cfg
// are quarantined in the stored copy.
func (r *Registry) Replace(cfg *HomeConfig) {
	if cfg == nil {
		return
	}
	cfg = cfg.validated()
	r.current.Store(cfg)
	v := r.version.Add(1)

	r.logger.Info("home config loaded",
		"version", v,
		"commands", len(cfg.Commands),
		"scenes", len(cfg.LightScenes),
		"sensors", len(cfg.Sensors),
		"quarantined", len(cfg.Quarantined),
	)
	for _, q := range cfg.Quarantined {
		r.logger.Warn("config entry quarantined", "section", q.Section, "name", q.Name, "error", q.Error)
	}

	r.mu.Lock()
	hooks := append([]func(*HomeConfig){}, r.onReplace...)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn(cfg)
	}
}

// Load parses data and replaces the configuration. On a parse error the
// current configuration is kept.
func (r *Registry) Load(data []byte) error {
	cfg, err := ParseConfig(data)
	if err != nil {
		return err
	}
	r.Replace(cfg)
	return nil
}

// LoadFile reads path and replaces the configuration.
func (r *Registry) LoadFile(path string) error {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	r.Replace(cfg)
	return nil
}
