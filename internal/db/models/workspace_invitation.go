// Package models - workspace_invitation.go defines the pending grant of
// workspace membership to an email address, consumable once via acceptance.
package models

import "time"

// WorkspaceInvitation represents a pending (or accepted) invitation.
// Accepted invitations are never deleted by expiry cleanup; non-accepted
// expired invitations are eligible for garbage collection.
type WorkspaceInvitation struct {
	ID          string
	WorkspaceID string
	Email       string
	Role        string
	InvitedBy   string
	InvitedAt   time.Time
	ExpiresAt   time.Time
	Accepted    bool
	AcceptedAt  *time.Time
	TokenHash   string // bcrypt hash of the raw token; raw token is never stored
	TokenPrefix string // plaintext prefix for indexed lookup on acceptance
}

// Expired reports whether the invitation's expiry has passed at the given instant.
func (i *WorkspaceInvitation) Expired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}

// Pending reports whether the invitation can still be accepted at the given instant.
func (i *WorkspaceInvitation) Pending(now time.Time) bool {
	return !i.Accepted && !i.Expired(now)
}
