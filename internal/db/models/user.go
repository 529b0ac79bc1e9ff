// Package models - user.go defines the User model, the identity anchor for
// kpiflow accounts created by the identity-provider exchange.
package models

import "time"

// User represents an account in the system
type User struct {
	ID        string
	Email     string
	Name      string
	OIDCSub   *string // OIDC subject identifier (unique per provider)
	CreatedAt time.Time
	UpdatedAt time.Time
}
