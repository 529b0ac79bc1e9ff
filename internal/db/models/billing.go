// Package models - billing.go defines the Subscription record fed by the
// billing-provider webhook collaborator, and the live usage counters consulted
// by the quota enforcer. Counters are mutated by resource create/delete
// handlers, never by the authorization core itself.
package models

import "time"

// Subscription binds a user (workspace owner) to a plan tier.
type Subscription struct {
	ID        string
	UserID    string
	PlanType  string // FREE, STARTER, PRO, ENTERPRISE
	Status    string // active, past_due, canceled
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UsageTracking holds the live workspace counter for one owner.
type UsageTracking struct {
	UserID         string
	WorkspaceCount int
	UpdatedAt      time.Time
}

// WorkspaceUsage holds the live KPI counter for one workspace.
type WorkspaceUsage struct {
	WorkspaceID string
	KPICount    int
	UpdatedAt   time.Time
}
