package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the state mirror.
const (
	MeasurementState = "home_state"
	MeasurementLog   = "home_log"
)

// WriteState records a state mirror value. Numbers and booleans become a
// "value" field, anything else a "text" field. nil (a delete) is recorded as
// deleted=true.
//
// Example:
//
//	client.WriteState("state/sensor/KITCHEN/temperature", 21.5, time.Now())
func (c *Client) WriteState(path string, value any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementState, map[string]string{"path": path}, stateFields(value), at))
}

// WriteLogEntry records an appended log entry. String fields of the entry
// become tags when listed in tagKeys.
//
// Example:
//
//	client.WriteLogEntry("logs/doors", map[string]any{"name": "FRONT", "value": "OPEN"}, []string{"name"}, time.Now())
func (c *Client) WriteLogEntry(path string, fields map[string]any, tagKeys []string, at time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{"path": path}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, k := range tagKeys {
		if s, ok := out[k].(string); ok {
			tags[k] = s
			delete(out, k)
		}
	}
	if len(out) == 0 {
		out["count"] = 1
	}

	c.writeAPI.WritePoint(write.NewPoint(MeasurementLog, tags, out, at))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func stateFields(value any) map[string]any {
	switch v := value.(type) {
	case nil:
		return map[string]any{"deleted": true}
	case bool, int, int64, float64, float32:
		return map[string]any{"value": v}
	case string:
		return map[string]any{"text": v}
	default:
		return map[string]any{"text": stringify(v)}
	}
}

func stringify(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
