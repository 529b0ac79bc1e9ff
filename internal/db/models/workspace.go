// Package models - workspace.go defines the Workspace model, the tenant
// isolation boundary. Every business resource belongs to exactly one workspace.
package models

import "time"

// Workspace represents a tenant boundary. Owned by exactly one user, but many
// users may hold memberships.
type Workspace struct {
	ID        string
	Name      string
	Slug      string // URL-safe identifier
	OwnerID   string
	PlanType  string // plan tier of the owning subscription at creation time
	CreatedAt time.Time
	UpdatedAt time.Time
}
