// workspace.go validates workspace scope. The session's active workspace must
// equal the requested :workspaceID exactly; a token scoped to one workspace
// never reaches another, whatever roles the user holds elsewhere. The role
// then comes from the membership record at request time, never from the
// token: a role change or removal takes effect on the member's next request
// without reissuing tokens. Unscoped sessions fail closed here.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/auth"
	"github.com/kpiflow/kpiflow/internal/db/models"
)

// MembershipStore looks up the live membership record.
// *repositories.MembershipRepository satisfies it.
type MembershipStore interface {
	GetMembership(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMembership, error)
}

// WorkspaceParam is the route parameter naming the target workspace.
const WorkspaceParam = "workspaceID"

// WorkspaceMiddleware resolves the target workspace, requires it to equal the
// session's scope, and verifies the live membership. The target is the
// :workspaceID route parameter when present, otherwise the workspace scope
// carried by the session token. On success the validated scope is exposed as
// response headers for downstream consumers.
func WorkspaceMiddleware(memberships MembershipStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		if userID == "" {
			abort(c, apierr.New(apierr.KindSessionExpired, auth.SessionExpiredMessage))
			return
		}

		scope := ""
		if claims, ok := sessionClaims(c); ok && claims != nil {
			scope = claims.WorkspaceID
		}

		workspaceID := c.Param(WorkspaceParam)
		if workspaceID == "" {
			workspaceID = scope
		}

		// Strict scope equality. An unscoped session, or one scoped to a
		// different workspace, is denied before any membership lookup.
		if workspaceID == "" || scope != workspaceID {
			abort(c, apierr.New(apierr.KindWorkspaceAccessDenied, "You do not have access to this workspace."))
			return
		}

		// The scope matched, so a missing membership row means the record
		// was removed after the token was issued, not a cross-workspace
		// request.
		membership, err := memberships.GetMembership(c.Request.Context(), workspaceID, userID)
		if err != nil {
			abort(c, apierr.Wrap(apierr.KindNetworkError, "failed to load membership", err))
			return
		}
		if membership == nil {
			abort(c, apierr.New(apierr.KindInsufficientPermissions, "Your membership in this workspace could not be verified."))
			return
		}

		role, err := auth.ParseRole(membership.Role)
		if err != nil {
			abort(c, apierr.Wrap(apierr.KindNetworkError, "membership carries unknown role", err))
			return
		}

		c.Set(ContextWorkspaceID, workspaceID)
		c.Set(ContextRole, role)

		c.Header(HeaderWorkspaceID, workspaceID)
		c.Header(HeaderUserRole, string(role))
		c.Header(HeaderUserID, userID)

		c.Next()
	}
}

func sessionClaims(c *gin.Context) (*auth.SessionClaims, bool) {
	v, exists := c.Get(ContextClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*auth.SessionClaims)
	return claims, ok
}

// contextRole returns the validated role set by WorkspaceMiddleware.
func contextRole(c *gin.Context) (auth.Role, bool) {
	v, exists := c.Get(ContextRole)
	if !exists {
		return "", false
	}
	role, ok := v.(auth.Role)
	return role, ok
}
