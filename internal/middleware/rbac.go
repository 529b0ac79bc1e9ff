// rbac.go enforces permission requirements against the role resolved by the
// workspace stage. Denials name the exact permissions that were missing so a
// client can render an actionable message.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/auth"
)

func permissionDenied(missing []auth.Permission) *apierr.Error {
	names := make([]string, len(missing))
	for i, p := range missing {
		names[i] = string(p)
	}
	return apierr.Newf(apierr.KindInsufficientPermissions,
		"You do not have permission to perform this action. Missing: %s",
		strings.Join(names, ", ")).
		WithDetails(map[string]interface{}{"missingPermissions": names})
}

// RequirePermission rejects unless the role grants the permission.
func RequirePermission(perm auth.Permission) gin.HandlerFunc {
	return RequireAllPermissions(perm)
}

// RequireAllPermissions rejects unless the role grants every permission.
// The denial lists all missing permissions, not just the first.
func RequireAllPermissions(perms ...auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := contextRole(c)
		if !ok {
			abort(c, permissionDenied(perms))
			return
		}

		if missing := auth.MissingPermissions(role, perms); len(missing) > 0 {
			abort(c, permissionDenied(missing))
			return
		}

		c.Next()
	}
}

// RequireAnyPermission rejects unless the role grants at least one of the
// permissions.
func RequireAnyPermission(perms ...auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := contextRole(c)
		if !ok {
			abort(c, permissionDenied(perms))
			return
		}

		if !auth.HasAnyPermission(role, perms) {
			abort(c, permissionDenied(perms))
			return
		}

		c.Next()
	}
}

// RequireRole rejects unless the member's role meets the threshold in the
// OWNER > ADMIN > MEMBER ordering.
func RequireRole(minimum auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := contextRole(c)
		if !ok || !auth.RoleAtLeast(role, minimum) {
			abort(c, apierr.Newf(apierr.KindInsufficientPermissions,
				"This action requires the %s role or higher.", minimum))
			return
		}

		c.Next()
	}
}
