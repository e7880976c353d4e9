// Package influxdb writes the state mirror's history to InfluxDB v2.
//
// Writes are non-blocking and batched by the client library. Asynchronous
// write failures are delivered through SetOnError. When influxdb.enabled is
// false, Connect returns ErrDisabled and the mirror runs without history.
package influxdb
