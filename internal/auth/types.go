package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer is a dashboard that only reads.
	RoleViewer Role = "viewer"

	// RoleOperator can trigger commands (keypads, voice assistants, scripts).
	RoleOperator Role = "operator"

	// RoleAdmin has full control including arming and disarming.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Auth errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrForbidden    = errors.New("insufficient permissions")
)
