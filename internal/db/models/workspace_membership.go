// Package models - workspace_membership.go defines the join entity binding a
// user to a workspace with a role. At most one membership exists per
// (workspace, user) pair; the unique constraint lives in the schema.
package models

import "time"

// WorkspaceMembership represents a user's membership in a workspace
type WorkspaceMembership struct {
	WorkspaceID string
	UserID      string
	Role        string // OWNER, ADMIN, or MEMBER
	JoinedAt    time.Time
	InvitedBy   *string    // user id of the inviter, nil for bootstrap memberships
	InvitedAt   *time.Time
}

// MembershipWithWorkspace includes workspace details for a user's membership,
// used when deriving the active workspace at sign-in.
type MembershipWithWorkspace struct {
	WorkspaceID   string    `json:"workspace_id"`
	WorkspaceName string    `json:"workspace_name"`
	WorkspaceSlug string    `json:"workspace_slug"`
	UserID        string    `json:"user_id"`
	Role          string    `json:"role"`
	JoinedAt      time.Time `json:"joined_at"`
}
