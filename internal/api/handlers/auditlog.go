// auditlog.go exposes the security monitoring views: the in-memory decision
// ring for live triage and the persisted trail for history.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/audit"
	"github.com/kpiflow/kpiflow/internal/db/repositories"
)

// AuditHandlers handles the audit log endpoints.
type AuditHandlers struct {
	recorder *audit.Recorder
	store    *repositories.AuditRepository
	logger   *slog.Logger
}

// NewAuditHandlers creates an AuditHandlers instance. store may be nil when
// durable persistence is disabled; the history endpoint then reports an error.
func NewAuditHandlers(recorder *audit.Recorder, store *repositories.AuditRepository, logger *slog.Logger) *AuditHandlers {
	return &AuditHandlers{recorder: recorder, store: store, logger: logger}
}

// Recent returns the newest access decisions from the in-memory ring.
// GET /api/v1/workspaces/:workspaceID/audit/recent?limit=50
func (h *AuditHandlers) Recent() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := intQuery(c, "limit", 50, 1, 500)

		c.JSON(http.StatusOK, gin.H{
			"entries": h.recorder.Recent(limit),
		})
	}
}

// Failed returns denied decisions inside the lookback window.
// GET /api/v1/workspaces/:workspaceID/audit/failed?window=60
func (h *AuditHandlers) Failed() gin.HandlerFunc {
	return func(c *gin.Context) {
		window := intQuery(c, "window", 60, 1, 24*60)
		since := time.Now().Add(-time.Duration(window) * time.Minute)

		c.JSON(http.StatusOK, gin.H{
			"entries":        h.recorder.FailedAttempts(since),
			"window_minutes": window,
		})
	}
}

// Suspicious returns principals whose denial count inside the window crossed
// the threshold.
// GET /api/v1/workspaces/:workspaceID/audit/suspicious?window=60&threshold=5
func (h *AuditHandlers) Suspicious() gin.HandlerFunc {
	return func(c *gin.Context) {
		window := intQuery(c, "window", 60, 1, 24*60)
		threshold := intQuery(c, "threshold", 5, 1, 1000)
		since := time.Now().Add(-time.Duration(window) * time.Minute)

		c.JSON(http.StatusOK, gin.H{
			"principals":     h.recorder.SuspiciousActivity(since, threshold),
			"window_minutes": window,
			"threshold":      threshold,
		})
	}
}

// History returns the persisted audit trail, which survives restarts and
// outlives the ring's capacity.
// GET /api/v1/workspaces/:workspaceID/audit/history?limit=100
func (h *AuditHandlers) History() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.store == nil {
			respondError(c, apierr.New(apierr.KindNetworkError, "Audit persistence is not enabled."))
			return
		}

		limit := intQuery(c, "limit", 100, 1, 1000)

		entries, err := h.store.ListRecent(c.Request.Context(), limit)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to load audit history", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"entries": entries,
		})
	}
}

// intQuery parses an integer query parameter, clamping to [min, max] and
// falling back to def on absence or garbage.
func intQuery(c *gin.Context, name string, def, min, max int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
