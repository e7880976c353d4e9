// Package metrics emits DogStatsD metrics for the orchestrator.
//
// A nil *Recorder is valid and drops everything, so components take one
// unconditionally and the process decides whether statsd is enabled.
package metrics

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
)

// Metric names.
const (
	CommandExecuted     = "command.executed"
	CommandDuration     = "command.duration"
	SubActionOutcome    = "subaction.outcome"
	SystemState         = "system.state"
	CapabilityAvailable = "capability.available"
	MirrorDropped       = "mirror.dropped"
	MirrorWriteFailed   = "mirror.write_failed"
	DoorChanged         = "door.changed"
	BridgeRestart       = "bridge.process.restart"
)

// Client is the subset of *statsd.Client the recorder uses.
type Client interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Incr(name string, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Close() error
}

// Logger receives emit failures.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder wraps a statsd client. Emit errors are logged at warn and
// otherwise ignored.
type Recorder struct {
	client Client
	logger Logger
}

// New connects a DogStatsD client. Returns (nil, nil) when statsd is disabled.
func New(cfg config.StatsDConfig, logger Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client, err := statsd.New(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("creating statsd client: %w", err)
	}
	client.Namespace = cfg.Namespace
	client.Tags = cfg.Tags

	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client Client, logger Logger) *Recorder {
	return &Recorder{client: client, logger: logger}
}

// Gauge records a gauge value.
func (r *Recorder) Gauge(name string, value float64, tags ...string) {
	if r == nil {
		return
	}
	r.check(name, r.client.Gauge(name, value, tags, 1))
}

// Incr increments a counter.
func (r *Recorder) Incr(name string, tags ...string) {
	if r == nil {
		return
	}
	r.check(name, r.client.Incr(name, tags, 1))
}

// Timing records a duration.
func (r *Recorder) Timing(name string, d time.Duration, tags ...string) {
	if r == nil {
		return
	}
	r.check(name, r.client.Timing(name, d, tags, 1))
}

// Close flushes and closes the client.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}

func (r *Recorder) check(name string, err error) {
	if err != nil && r.logger != nil {
		r.logger.Warn("failed to emit metric", "metric", name, "error", err)
	}
}

// Tag formats a key:value statsd tag.
func Tag(key, value string) string {
	return key + ":" + value
}
