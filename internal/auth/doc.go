// Package auth provides API authentication and authorisation for the home
// orchestrator.
//
// There is no local user store. Operators mint bearer tokens with the
// `graylogic-home token` command (or any HS256 signer holding the shared
// secret); the API validates the signature and maps the token's role onto
// a static permission set:
//   - viewer: read state and capability status, receive WebSocket events
//   - operator: viewer plus run commands, press keys, ring the doorbell
//   - admin: operator plus change the system state and do-not-disturb
package auth
