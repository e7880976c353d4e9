package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// The mirror then runs with its MQTT and SQLite backends only.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps the ping or health failure seen by Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close or before a
	// successful Connect. Writes in that state are dropped silently.
	ErrNotConnected = errors.New("influxdb: not connected")
)
