package mirror

import (
	"context"
	"time"
)

// PointWriter is the subset of *influxdb.Client the Influx backend uses.
type PointWriter interface {
	WriteState(path string, value any, at time.Time)
	WriteLogEntry(path string, fields map[string]any, tagKeys []string, at time.Time)
}

// logTagKeys are entry fields indexed as tags rather than stored as fields.
var logTagKeys = []string{"name", "state", "command", "status", "source"}

// InfluxBackend records mirror writes as points. Writes are batched by the
// client; asynchronous failures surface through the client's error callback.
type InfluxBackend struct {
	w PointWriter
}

// NewInfluxBackend wraps a point writer.
func NewInfluxBackend(w PointWriter) *InfluxBackend {
	return &InfluxBackend{w: w}
}

// Name implements Backend.
func (b *InfluxBackend) Name() string { return "influxdb" }

// Set implements Backend.
func (b *InfluxBackend) Set(_ context.Context, path string, value any, at time.Time) error {
	b.w.WriteState(path, value, at)
	return nil
}

// Push implements Backend. Map entries keep their keys; any other value is
// stored under "value".
func (b *InfluxBackend) Push(_ context.Context, path string, entry Entry) error {
	fields, ok := entry.Value.(map[string]any)
	if !ok {
		fields = map[string]any{"value": entry.Value}
	}
	b.w.WriteLogEntry(path, fields, logTagKeys, entry.At)
	return nil
}
