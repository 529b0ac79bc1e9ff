// Package session implements the session lifecycle: building the workspace
// scope at sign-in, issuing and validating tokens against the server-held
// revocation list, and sign-out's bulk revocation.
package session

import (
	"context"
	"log/slog"

	"github.com/kpiflow/kpiflow/internal/auth"
	"github.com/kpiflow/kpiflow/internal/db/models"
)

// Context is the derived per-request principal scope. A user with no
// membership (or whose memberships could not be loaded) gets an unscoped
// context: Scoped is false and WorkspaceID/Role are empty. Unscoped sessions
// fail closed at the workspace access validator, not here.
type Context struct {
	UserID      string
	Email       string
	Name        string
	WorkspaceID string
	Role        auth.Role
	Scoped      bool
}

// MembershipStore is the membership lookup the builder needs.
// *repositories.MembershipRepository satisfies it.
type MembershipStore interface {
	ListByUser(ctx context.Context, userID string) ([]*models.MembershipWithWorkspace, error)
}

// Builder derives the active workspace scope for a signing-in user.
type Builder struct {
	memberships MembershipStore
	logger      *slog.Logger
}

func NewBuilder(memberships MembershipStore, logger *slog.Logger) *Builder {
	return &Builder{memberships: memberships, logger: logger}
}

// Build selects the user's most recently joined workspace as the active
// scope. A store failure degrades to an unscoped context rather than
// blocking sign-in; the unscoped session is rejected later by the workspace
// validator on any workspace-scoped route.
func (b *Builder) Build(ctx context.Context, userID, email, name string) *Context {
	sc := &Context{
		UserID: userID,
		Email:  email,
		Name:   name,
	}

	memberships, err := b.memberships.ListByUser(ctx, userID)
	if err != nil {
		b.logger.Error("failed to load memberships during sign-in, issuing unscoped session",
			"user_id", userID, "error", err)
		return sc
	}
	if len(memberships) == 0 {
		return sc
	}

	// ListByUser orders most recently joined first.
	active := memberships[0]
	role, err := auth.ParseRole(active.Role)
	if err != nil {
		b.logger.Error("membership carries unknown role, issuing unscoped session",
			"user_id", userID, "workspace_id", active.WorkspaceID, "role", active.Role)
		return sc
	}

	sc.WorkspaceID = active.WorkspaceID
	sc.Role = role
	sc.Scoped = true
	return sc
}
