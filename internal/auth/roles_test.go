package auth

import "testing"

func asSet(perms []Permission) map[Permission]bool {
	set := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	return set
}

// Each role's set must be a strict superset of the role below it. The matrix
// enumerates every set explicitly, so this property is asserted rather than assumed.
func TestPermissionMonotonicity(t *testing.T) {
	member := asSet(PermissionsFor(RoleMember))
	admin := asSet(PermissionsFor(RoleAdmin))
	owner := asSet(PermissionsFor(RoleOwner))

	if len(member) == 0 || len(admin) == 0 || len(owner) == 0 {
		t.Fatal("no role may have an empty permission set")
	}

	for p := range member {
		if !admin[p] {
			t.Errorf("ADMIN missing MEMBER permission %s", p)
		}
	}
	for p := range admin {
		if !owner[p] {
			t.Errorf("OWNER missing ADMIN permission %s", p)
		}
	}

	if len(admin) <= len(member) {
		t.Error("ADMIN set must be strictly larger than MEMBER set")
	}
	if len(owner) <= len(admin) {
		t.Error("OWNER set must be strictly larger than ADMIN set")
	}
}

func TestRoleHas(t *testing.T) {
	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleMember, PermViewKPI, true},
		{RoleMember, PermCreateKPI, false},
		{RoleAdmin, PermCreateKPI, true},
		{RoleAdmin, PermManageWorkspace, false},
		{RoleAdmin, PermManageBilling, false},
		{RoleOwner, PermManageWorkspace, true},
		{RoleOwner, PermUseAIFeatures, true},
		{Role("VIEWER"), PermViewKPI, false},
	}

	for _, tc := range cases {
		if got := RoleHas(tc.role, tc.perm); got != tc.want {
			t.Errorf("RoleHas(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestHasAllAnyPermissions(t *testing.T) {
	required := []Permission{PermCreateKPI, PermEditKPI}

	if !HasAllPermissions(RoleAdmin, required) {
		t.Error("ADMIN should hold CREATE_KPI and EDIT_KPI")
	}
	if HasAllPermissions(RoleMember, required) {
		t.Error("MEMBER should not hold CREATE_KPI")
	}
	if !HasAnyPermission(RoleMember, []Permission{PermCreateKPI, PermViewKPI}) {
		t.Error("MEMBER holds VIEW_KPI, HasAny should pass")
	}
	if HasAnyPermission(RoleMember, []Permission{PermCreateKPI, PermManageBilling}) {
		t.Error("MEMBER holds neither permission, HasAny should fail")
	}
}

func TestMissingPermissions(t *testing.T) {
	missing := MissingPermissions(RoleMember, []Permission{PermViewKPI, PermCreateKPI, PermManageBilling})
	if len(missing) != 2 {
		t.Fatalf("missing = %v, want 2 entries", missing)
	}
	if missing[0] != PermCreateKPI || missing[1] != PermManageBilling {
		t.Errorf("missing = %v, want [CREATE_KPI MANAGE_BILLING]", missing)
	}
}

func TestRoleAtLeast(t *testing.T) {
	cases := []struct {
		role, min Role
		want      bool
	}{
		{RoleOwner, RoleMember, true},
		{RoleOwner, RoleOwner, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleOwner, false},
		{RoleMember, RoleAdmin, false},
		{Role("GUEST"), RoleMember, false},
		{RoleOwner, Role("GUEST"), false},
	}

	for _, tc := range cases {
		if got := RoleAtLeast(tc.role, tc.min); got != tc.want {
			t.Errorf("RoleAtLeast(%s, %s) = %v, want %v", tc.role, tc.min, got, tc.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range AllRoles() {
		parsed, err := ParseRole(string(r))
		if err != nil {
			t.Errorf("ParseRole(%s): %v", r, err)
		}
		if parsed != r {
			t.Errorf("ParseRole(%s) = %s", r, parsed)
		}
	}

	if _, err := ParseRole("superuser"); err == nil {
		t.Error("expected error for unknown role")
	}
	if err := ValidateRole("owner"); err == nil {
		t.Error("roles are case-sensitive; lowercase must be rejected")
	}
}
