// Package api implements the HTTP trigger API and WebSocket event stream for
// the home orchestrator.
//
// This package provides:
//   - REST endpoints to read and change the system state, run named
//     commands, press keypad keys and ring the doorbell
//   - Capability availability and runtime metrics
//   - WebSocket hub broadcasting orchestrator events to dashboards
//   - Bearer JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Security
//
// When security.jwt.secret is empty the API is open (development). With a
// secret, every /api/v1 route except health requires a bearer token whose
// role grants the route's permission.
//
// # Status codes
//
// Command results are always returned in the body. An unknown command is
// 404, a chain that hit the recursion limit is 409, and a command whose
// every sub-action failed or was unavailable is 502.
package api
