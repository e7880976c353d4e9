package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermStateRead, true},
		{RoleViewer, PermCommandExecute, false},
		{RoleViewer, PermStateControl, false},
		{RoleOperator, PermCommandExecute, true},
		{RoleOperator, PermStateControl, false},
		{RoleAdmin, PermStateControl, true},
		{Role("guest"), PermStateRead, false},
	}

	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleAdmin)
	perms[0] = "mutated"

	if PermissionsForRole(RoleAdmin)[0] == "mutated" {
		t.Error("PermissionsForRole should return a copy")
	}
	if PermissionsForRole(Role("guest")) != nil {
		t.Error("unknown role should have no permissions")
	}
}
