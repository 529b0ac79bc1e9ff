// auth.go validates the bearer token and populates the principal identity.
// Validation is two-step: the signature and expiry check is stateless, then
// the token hash is cross-checked against the server-held session records so
// sign-out's bulk delete takes effect immediately. Every failure mode maps to
// SESSION_EXPIRED; the response does not reveal whether the token was
// malformed, expired, or revoked.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/auth"
)

// TokenValidator validates a bearer token against the signature and the
// revocation list. *session.Manager satisfies it.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.SessionClaims, error)
}

// AuthMiddleware authenticates the request from its Authorization header.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, apierr.New(apierr.KindSessionExpired, auth.SessionExpiredMessage))
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			abort(c, apierr.New(apierr.KindSessionExpired, auth.SessionExpiredMessage))
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			abort(c, apierr.New(apierr.KindSessionExpired, auth.SessionExpiredMessage))
			return
		}

		claims, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			abort(c, apierr.Wrap(apierr.KindSessionExpired, auth.SessionExpiredMessage, err))
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextUserID, claims.UserID())
		c.Set(ContextEmail, claims.Email)

		c.Next()
	}
}
