// Package models - kpi.go defines the KPI and Objective business entities.
// These are thin: the interesting behavior is the quota and permission checks
// on their create/delete paths, not the entities themselves.
package models

import "time"

// KPI represents a key performance indicator scoped to one workspace.
type KPI struct {
	ID          string
	WorkspaceID string
	ObjectiveID *string
	Name        string
	Target      float64
	Current     float64
	Unit        string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Objective groups KPIs under a workspace goal.
type Objective struct {
	ID          string
	WorkspaceID string
	Title       string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
