// Package handlers implements the HTTP handlers behind the kpiflow API.
// Authentication, workspace membership, role, permission, rate-limit, and
// schema checks run in the middleware pipeline before any handler executes;
// handlers only perform the business operation and shape the response.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/kpiflow/kpiflow/internal/apierr"
)

// respondError writes the canonical error envelope for err. Server-side
// failures are also attached to the gin context for request logging.
func respondError(c *gin.Context, err error) {
	status, resp := apierr.ToResponse(err)
	if status >= 500 {
		c.Error(err)
	}
	c.JSON(status, resp)
}
