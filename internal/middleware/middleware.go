// Package middleware provides the Gin middleware that forms the request
// authorization pipeline. Stage ordering matters and is fixed by Pipeline():
//
//	Method → Auth → Workspace → Role → Permission → RateLimit → Schema → Handler
//
// Each stage rejects with exactly one error kind, so a request failing
// several stages at once always reports the earliest one. Security headers,
// request IDs, metrics, and audit recording wrap the pipeline globally in
// router.go.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/audit"
)

// Context keys populated by pipeline stages.
const (
	// ContextClaims holds the *auth.SessionClaims set by AuthMiddleware.
	ContextClaims = "session_claims"
	// ContextUserID holds the authenticated user id.
	ContextUserID = "user_id"
	// ContextEmail holds the authenticated user's email.
	ContextEmail = "email"
	// ContextWorkspaceID holds the validated target workspace id.
	ContextWorkspaceID = "workspace_id"
	// ContextRole holds the auth.Role from the live membership record.
	ContextRole = "user_role"

	// contextDecision holds the audit.Action recorded for the request.
	contextDecision = "decision_action"
)

// Response headers set once workspace access is validated. Downstream
// services consume these instead of re-deriving the scope.
const (
	HeaderWorkspaceID = "x-workspace-id"
	HeaderUserRole    = "x-user-role"
	HeaderUserID      = "x-user-id"
)

// abort renders the error in the uniform response shape and stops the chain.
// The decision classification is left in the context for the audit wrapper.
func abort(c *gin.Context, err error) {
	c.Set(contextDecision, string(actionFor(err)))

	status, resp := apierr.ToResponse(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, resp)
}

// actionFor maps an error to its audit classification.
func actionFor(err error) audit.Action {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		return audit.ActionAccessDenied
	}
	switch apiErr.Kind {
	case apierr.KindSessionExpired:
		return audit.ActionAuthFailed
	case apierr.KindWorkspaceAccessDenied:
		return audit.ActionAccessDenied
	case apierr.KindInsufficientPermissions:
		return audit.ActionPermissionDenied
	case apierr.KindPlanLimitExceeded:
		return audit.ActionQuotaDenied
	case apierr.KindRateLimitExceeded:
		return audit.ActionRateLimited
	case apierr.KindValidationError, apierr.KindMethodNotAllowed:
		return audit.ActionValidationFailed
	default:
		return audit.ActionAccessDenied
	}
}

// UserID returns the authenticated user id from the context, empty when the
// auth stage has not run or rejected the request.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// WorkspaceID returns the validated workspace id from the context.
func WorkspaceID(c *gin.Context) string {
	return c.GetString(ContextWorkspaceID)
}
