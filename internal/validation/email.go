// Package validation provides input validation for request payloads. Each
// validator checks one aspect of the input: email shape, workspace slug
// format, identifier format, and body schema. Validators run before any data
// is persisted so malformed requests are rejected early.
package validation

import (
	"fmt"
	"net/mail"
	"strings"
)

// MaxEmailLength caps accepted addresses (RFC 5321 path limit)
const MaxEmailLength = 254

// ValidateEmail checks that the string is a plausible single email address.
// The address must be bare (no display name) and carry a domain with a dot.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > MaxEmailLength {
		return fmt.Errorf("email exceeds %d characters", MaxEmailLength)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email address: %s", email)
	}
	if addr.Name != "" || addr.Address != email {
		return fmt.Errorf("invalid email address: %s", email)
	}

	at := strings.LastIndex(email, "@")
	if at < 0 || !strings.Contains(email[at+1:], ".") {
		return fmt.Errorf("email domain must be fully qualified: %s", email)
	}

	return nil
}

// NormalizeEmail lowercases and trims an address for storage and comparison.
// Invitation matching is case-insensitive on the email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
