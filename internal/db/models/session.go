// Package models - session.go defines the server-held session record. Sessions
// act as a revocation list: sign-out deletes all of a user's rows, which
// immediately invalidates every outstanding token regardless of JWT expiry.
package models

import "time"

// Session represents one server-held proof of an authenticated principal.
type Session struct {
	ID        string
	UserID    string
	TokenHash string // SHA-256 of the issued JWT; raw tokens are never stored
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session record has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
