package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-home/internal/capability"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/mqtt"
)

// commandQoS is used for every command publish.
const commandQoS byte = 1

// SourceCore is the Source of every command sent by the orchestrator.
const SourceCore = "core"

// Client is the subset of *mqtt.Client the adapters use.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger defines the logging interface used by the adapters.
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

// bridge is the MQTT plumbing shared by every adapter.
type bridge struct {
	kind   capability.Kind
	client Client
	topics mqtt.Topics
	emit   capability.EmitFunc
	logger Logger
	now    func() time.Time

	mu     sync.Mutex
	subs   []string
	closed bool
}

// Factory returns the capability factory for kind. The factory fails with
// ErrNotConnected while the broker is unreachable.
func Factory(kind capability.Kind, client Client, topics mqtt.Topics, logger Logger) capability.Factory {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(_ context.Context, emit capability.EmitFunc) (capability.Adapter, error) {
		if !client.IsConnected() {
			return nil, ErrNotConnected
		}
		b := &bridge{
			kind:   kind,
			client: client,
			topics: topics,
			emit:   emit,
			logger: logger,
			now:    time.Now,
		}
		adapter, err := b.adapterFor()
		if err != nil {
			return nil, err
		}
		if err := b.subscribe(); err != nil {
			b.Close() //nolint:errcheck // already failing
			return nil, err
		}
		logger.Info("mqtt bridge adapter started", "kind", kind)
		return adapter, nil
	}
}

func (b *bridge) adapterFor() (capability.Adapter, error) {
	switch b.kind {
	case capability.Lighting:
		return &Lighting{b}, nil
	case capability.Thermostat:
		return &Thermostat{b}, nil
	case capability.ActivityHub:
		return &ActivityHub{b}, nil
	case capability.BinaryMesh:
		return &BinaryMesh{b}, nil
	case capability.Camera:
		return &Camera{b}, nil
	case capability.Audio:
		return &Audio{b}, nil
	case capability.Presence:
		return &Presence{b}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, b.kind)
	}
}

func (b *bridge) subscribe() error {
	health := b.topics.BridgeHealth(string(b.kind))
	if err := b.client.Subscribe(health, commandQoS, b.handleHealth); err != nil {
		return fmt.Errorf("subscribing %s: %w", health, err)
	}
	b.track(health)

	states := b.topics.AllBridgeStates(string(b.kind))
	if err := b.client.Subscribe(states, commandQoS, b.handleState); err != nil {
		return fmt.Errorf("subscribing %s: %w", states, err)
	}
	b.track(states)
	return nil
}

func (b *bridge) track(topic string) {
	b.mu.Lock()
	b.subs = append(b.subs, topic)
	b.mu.Unlock()
}

func (b *bridge) handleHealth(_ string, payload []byte) error {
	if len(payload) == 0 {
		return nil // retained message cleared
	}
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding %s health: %w", b.kind, err)
	}

	ev := capability.Event{Name: msg.eventName(), At: msg.Timestamp}
	if msg.Reason != "" {
		ev.Err = errors.New(msg.Reason)
	}
	b.deliver(ev)
	return nil
}

func (b *bridge) handleState(topic string, payload []byte) error {
	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding state on %s: %w", topic, err)
	}
	p, err := msg.payload()
	if err != nil {
		return fmt.Errorf("state on %s: %w", topic, err)
	}
	if r, ok := p.(capability.ThermostatReading); ok && r.ID == "" {
		r.ID = topic[strings.LastIndex(topic, "/")+1:]
		p = r
	}
	b.deliver(capability.Event{Name: capability.EventChange, Payload: p, At: msg.Timestamp})
	return nil
}

func (b *bridge) deliver(ev capability.Event) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed || b.emit == nil {
		return
	}
	ev.Kind = b.kind
	b.emit(ev)
}

// send publishes a command to graylogic/command/{kind}/{target}.
func (b *bridge) send(ctx context.Context, target, command string, params map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	msg := CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  b.now().UTC(),
		Command:    command,
		Parameters: params,
		Source:     SourceCore,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s command: %w", command, err)
	}

	topic := b.topics.BridgeCommand(string(b.kind), target)
	if err := b.client.Publish(topic, payload, commandQoS, false); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	b.logger.Debug("bridge command sent", "topic", topic, "command", command, "id", msg.ID)
	return nil
}

// Close unsubscribes the adapter's topics. Safe to call more than once.
func (b *bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var firstErr error
	for _, topic := range subs {
		if err := b.client.Unsubscribe(topic); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unsubscribing %s: %w", topic, err)
		}
	}
	return firstErr
}
