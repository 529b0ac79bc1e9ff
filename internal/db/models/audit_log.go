// Package models - audit_log.go defines the persisted audit log entry for
// access decisions. The hot path uses the in-memory recorder in internal/audit;
// this model backs the optional durable trail written asynchronously.
package models

import "time"

// AuditLog represents one persisted access decision
type AuditLog struct {
	ID          string
	UserID      *string // nil for unauthenticated attempts
	WorkspaceID *string
	Endpoint    string
	Method      string
	Action      string // granted, denied, auth_failed, permission_denied
	Reason      *string
	IPAddress   *string
	UserAgent   *string
	CreatedAt   time.Time
}
