package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of *mqtt.Client the MQTT backend uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// MQTTBackend mirrors state as retained messages under root.
type MQTTBackend struct {
	client MQTTClient
	root   string
	qos    byte
}

// NewMQTTBackend creates a backend writing under root (e.g. "graylogic/home").
func NewMQTTBackend(client MQTTClient, root string, qos byte) *MQTTBackend {
	return &MQTTBackend{client: client, root: strings.TrimSuffix(root, "/"), qos: qos}
}

// Name implements Backend.
func (b *MQTTBackend) Name() string { return "mqtt" }

// Topic returns the topic for a mirror path.
func (b *MQTTBackend) Topic(path string) string {
	return mqtt.Join(b.root, path)
}

// Set publishes value retained. nil clears the retained message.
func (b *MQTTBackend) Set(_ context.Context, path string, value any, _ time.Time) error {
	if value == nil {
		return b.client.Publish(b.Topic(path), nil, b.qos, true)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return b.client.Publish(b.Topic(path), payload, b.qos, true)
}

// Push publishes the entry as a non-retained message.
func (b *MQTTBackend) Push(_ context.Context, path string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding %s entry: %w", path, err)
	}
	return b.client.Publish(b.Topic(path), payload, b.qos, false)
}

// Watch subscribes to path (MQTT wildcards allowed) and reports payloads
// with the root stripped from the topic.
func (b *MQTTBackend) Watch(path string, fn WatchFunc) error {
	prefix := b.root + "/"
	return b.client.Subscribe(b.Topic(path), b.qos, func(topic string, payload []byte) error {
		fn(strings.TrimPrefix(topic, prefix), payload)
		return nil
	})
}
