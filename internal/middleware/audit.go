// audit.go records every access decision, granted or denied. It wraps the
// pipeline so the entry reflects the final outcome: a stage that aborted set
// its classification in the context, anything that reached a handler with a
// 2xx/3xx status is granted.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpiflow/kpiflow/internal/audit"
	"github.com/kpiflow/kpiflow/internal/telemetry"
)

// AuditMiddleware records the request's decision after the chain completes.
func AuditMiddleware(logger *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodOptions {
			return
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		entry := audit.Entry{
			Action:      decisionAction(c),
			UserID:      UserID(c),
			WorkspaceID: WorkspaceID(c),
			Endpoint:    endpoint,
			Method:      c.Request.Method,
			IPAddress:   c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			StatusCode:  c.Writer.Status(),
		}
		if !entry.Action.Granted() && len(c.Errors) > 0 {
			entry.Reason = c.Errors.Last().Error()
		}

		telemetry.AuthDecisionsTotal.WithLabelValues(string(entry.Action)).Inc()
		logger.Record(entry)
	}
}

// decisionAction resolves the final classification: the aborting stage's
// action when one was set, otherwise derived from the response status.
func decisionAction(c *gin.Context) audit.Action {
	if v, exists := c.Get(contextDecision); exists {
		if s, ok := v.(string); ok {
			return audit.Action(s)
		}
	}

	status := c.Writer.Status()
	switch {
	case status < 400:
		return audit.ActionGranted
	case status == http.StatusUnauthorized:
		return audit.ActionAuthFailed
	case status == http.StatusForbidden:
		return audit.ActionPermissionDenied
	case status == http.StatusTooManyRequests:
		return audit.ActionRateLimited
	case status == http.StatusBadRequest, status == http.StatusMethodNotAllowed:
		return audit.ActionValidationFailed
	default:
		return audit.ActionAccessDenied
	}
}
