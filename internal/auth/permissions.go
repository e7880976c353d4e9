package auth

// Permission represents a named capability in the API.
type Permission string

// Permission constants.
const (
	PermStateRead      Permission = "state:read"
	PermCommandExecute Permission = "command:execute"
	PermStateControl   Permission = "state:control"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermStateRead,
	},
	RoleOperator: {
		PermStateRead,
		PermCommandExecute,
	},
	RoleAdmin: {
		PermStateRead,
		PermCommandExecute,
		PermStateControl,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
