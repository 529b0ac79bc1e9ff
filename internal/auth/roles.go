// Package auth provides the authorization primitives for kpiflow: the static
// role-permission matrix, JWT session token creation/verification, and
// invitation token generation/validation.
// See internal/middleware for the request-time enforcement that uses these primitives.
package auth

import (
	"errors"
	"fmt"
)

// Role is the coarse-grained authority level a user holds within one workspace.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Permission is a fine-grained capability derived from a role via the static matrix.
type Permission string

const (
	PermViewKPI         Permission = "VIEW_KPI"
	PermCreateKPI       Permission = "CREATE_KPI"
	PermEditKPI         Permission = "EDIT_KPI"
	PermDeleteKPI       Permission = "DELETE_KPI"
	PermViewObjective   Permission = "VIEW_OBJECTIVE"
	PermCreateObjective Permission = "CREATE_OBJECTIVE"
	PermEditObjective   Permission = "EDIT_OBJECTIVE"
	PermDeleteObjective Permission = "DELETE_OBJECTIVE"
	PermInviteMember    Permission = "INVITE_MEMBER"
	PermRemoveMember    Permission = "REMOVE_MEMBER"
	PermManageWorkspace Permission = "MANAGE_WORKSPACE"
	PermManageBilling   Permission = "MANAGE_BILLING"
	PermViewAuditLog    Permission = "VIEW_AUDIT_LOG"
	PermUseIntegrations Permission = "USE_INTEGRATIONS"
	PermUseAIFeatures   Permission = "USE_AI_FEATURES"
)

// roleRank orders roles for threshold checks ("ADMIN or higher"). It is a
// strict total order used only for minimum-role comparisons; the permission
// sets below are enumerated explicitly and never derived from this rank.
var roleRank = map[Role]int{
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// rolePermissions is the static compiled matrix. Each role's set is listed in
// full; higher roles must remain strict supersets of lower ones (asserted in
// tests, not assumed here).
var rolePermissions = map[Role][]Permission{
	RoleMember: {
		PermViewKPI,
		PermViewObjective,
	},
	RoleAdmin: {
		PermViewKPI,
		PermCreateKPI,
		PermEditKPI,
		PermDeleteKPI,
		PermViewObjective,
		PermCreateObjective,
		PermEditObjective,
		PermDeleteObjective,
		PermInviteMember,
		PermRemoveMember,
		PermViewAuditLog,
		PermUseIntegrations,
	},
	RoleOwner: {
		PermViewKPI,
		PermCreateKPI,
		PermEditKPI,
		PermDeleteKPI,
		PermViewObjective,
		PermCreateObjective,
		PermEditObjective,
		PermDeleteObjective,
		PermInviteMember,
		PermRemoveMember,
		PermManageWorkspace,
		PermManageBilling,
		PermViewAuditLog,
		PermUseIntegrations,
		PermUseAIFeatures,
	},
}

// AllRoles returns every valid role, lowest authority first.
func AllRoles() []Role {
	return []Role{RoleMember, RoleAdmin, RoleOwner}
}

// ValidateRole checks that the provided string is a known role.
func ValidateRole(role string) error {
	switch Role(role) {
	case RoleOwner, RoleAdmin, RoleMember:
		return nil
	}
	return fmt.Errorf("invalid role: %s", role)
}

// PermissionsFor returns a copy of the role's permission set. Unknown roles
// yield an empty set rather than an error; the function is total over strings.
func PermissionsFor(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// RoleHas reports whether the role's set contains the permission.
func RoleHas(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the role holds every required permission.
func HasAllPermissions(role Role, required []Permission) bool {
	for _, p := range required {
		if !RoleHas(role, p) {
			return false
		}
	}
	return true
}

// HasAnyPermission reports whether the role holds at least one required permission.
func HasAnyPermission(role Role, required []Permission) bool {
	for _, p := range required {
		if RoleHas(role, p) {
			return true
		}
	}
	return false
}

// MissingPermissions returns the required permissions the role does not hold,
// preserving input order. The result is used verbatim in denial messages, the
// only diagnostic surfaced to API consumers.
func MissingPermissions(role Role, required []Permission) []Permission {
	var missing []Permission
	for _, p := range required {
		if !RoleHas(role, p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// RoleAtLeast reports whether role meets the minimum threshold (OWNER > ADMIN > MEMBER).
func RoleAtLeast(role, minimum Role) bool {
	r, ok := roleRank[role]
	if !ok {
		return false
	}
	m, ok := roleRank[minimum]
	if !ok {
		return false
	}
	return r >= m
}

// ErrInvalidRole is returned by ParseRole for unknown role strings.
var ErrInvalidRole = errors.New("invalid role")

// ParseRole converts a string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleMember:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidRole, s)
}
