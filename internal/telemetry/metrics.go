// Package telemetry provides application-level observability for kpiflow.
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<KPF_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// HTTP metrics use c.FullPath() (route template such as
// /api/workspaces/:workspaceID/kpis) rather than the raw request URL to
// prevent unbounded label cardinality from user-supplied path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, labelled by method, route template and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, labelled by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authorization metrics. The action label mirrors the audit trail's decision
// classification (granted, auth_failed, access_denied, permission_denied,
// rate_limited, quota_denied, validation_failed).
//
// Example alert: a spike in permission_denied for one workspace usually means
// a client is running with a stale role after a demotion.
var (
	AuthDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_decisions_total",
			Help: "Access decisions made by the request pipeline, labelled by outcome.",
		},
		[]string{"action"},
	)

	QuotaDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_denials_total",
			Help: "Write attempts denied by plan limits, labelled by limit type (workspaces, kpis, feature).",
		},
		[]string{"limit_type"},
	)
)

// Session lifecycle metrics.
var (
	SessionsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_issued_total",
			Help: "Session tokens issued at sign-in.",
		},
	)

	SessionsRevokedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_revoked_total",
			Help: "Session records revoked by sign-out.",
		},
	)
)

// Invitation lifecycle metrics.
var (
	InvitationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invitations_created_total",
			Help: "Workspace invitations created.",
		},
	)

	InvitationsAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invitations_accepted_total",
			Help: "Workspace invitations folded into memberships.",
		},
	)

	InvitationsExpiredCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invitations_expired_cleaned_total",
			Help: "Expired invitations removed by the cleanup job.",
		},
	)
)

// DBOpenConnections tracks the connection pool size, polled every 30 s.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Open connections in the database pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds. The goroutine exits when the
// database becomes unreachable, which happens at shutdown once main.go's
// deferred db.Close() runs.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
