// Package mirror writes the orchestrator's externally observable state.
//
// The mirror is a path-keyed store with two operations: Set replaces the
// value at a path (nil deletes it) and Push appends an entry under a path.
// Writes are fire-and-forget: callers never block on storage, and failures
// are logged by the Writer's error callback.
//
// Paths are slash-separated and relative, for example:
//
//	state/systemState      latest system state
//	state/doors/FRONT      latest debounced door value
//	logs/systemState       appended state transitions
//	logs/commands          appended command execution summaries
//
// Backends:
//
//   - MQTTBackend publishes Set values retained under the mirror root and
//     Push entries as plain messages. It also implements Watcher.
//   - SQLiteBackend keeps the latest value per path and an append log.
//   - InfluxBackend records every write as a time-series point.
//
// Writer fans each write out to every backend on its own goroutine.
package mirror
