// invite.go generates and validates invitation tokens. The raw token is the
// sole credential for accepting an invitation and is shown exactly once (in
// the invitation email); only its bcrypt hash is stored. The short plaintext
// prefix is persisted alongside the hash so acceptance can do a fast indexed
// lookup to narrow the candidate set before running the bcrypt comparison.
// The token encodes nothing: workspace and role are always resolved
// server-side from the invitation record, never trusted from client input.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// InviteTokenLength is the length of the random part of the token in bytes
	InviteTokenLength = 32

	// InvitePrefixLength is the number of characters stored plaintext for lookup
	InvitePrefixLength = 10

	// inviteBcryptCost is the cost factor for bcrypt hashing
	inviteBcryptCost = 12
)

// GenerateInviteToken creates a new random invitation token.
// Returns: full token (to email once), bcrypt hash (to store), lookup prefix.
func GenerateInviteToken() (token string, hash string, prefix string, err error) {
	randomBytes := make([]byte, InviteTokenLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullToken := fmt.Sprintf("kpi_%s", base64.RawURLEncoding.EncodeToString(randomBytes))

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullToken), inviteBcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash invitation token: %w", err)
	}

	return fullToken, string(hashBytes), fullToken[:InvitePrefixLength], nil
}

// ValidateInviteToken checks a provided token against the stored hash.
func ValidateInviteToken(providedToken, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedToken)) == nil
}

// InviteTokenPrefix returns the lookup prefix for a raw token.
func InviteTokenPrefix(token string) string {
	if len(token) > InvitePrefixLength {
		return token[:InvitePrefixLength]
	}
	return token
}
