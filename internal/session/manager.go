package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/kpiflow/kpiflow/internal/auth"
	"github.com/kpiflow/kpiflow/internal/db/models"
)

// SessionStore is the revocation-list persistence the manager needs.
// *repositories.SessionRepository satisfies it.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	DeleteByEmail(ctx context.Context, email string) (int64, error)
}

// CleanupHook runs during sign-out before the session records are deleted.
// Hooks are best effort: a hook error is logged and never blocks sign-out.
type CleanupHook func(ctx context.Context, userID string) error

// Manager issues, validates, and revokes sessions.
type Manager struct {
	builder  *Builder
	sessions SessionStore
	tokenTTL time.Duration
	hooks    []CleanupHook
	logger   *slog.Logger
}

func NewManager(builder *Builder, sessions SessionStore, tokenTTL time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		builder:  builder,
		sessions: sessions,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// AddCleanupHook registers a best-effort sign-out hook.
func (m *Manager) AddCleanupHook(h CleanupHook) {
	m.hooks = append(m.hooks, h)
}

// HashToken returns the hex SHA-256 of a session token. Only the hash is
// stored server side.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SignIn builds the user's workspace scope, issues a signed token, and
// records its hash in the revocation list. The session row must be written
// for the token to validate later; a store failure here fails the sign-in.
func (m *Manager) SignIn(ctx context.Context, user *models.User) (string, *Context, error) {
	sc := m.builder.Build(ctx, user.ID, user.Email, user.Name)

	token, err := auth.GenerateSessionToken(sc.UserID, sc.Email, sc.Name, sc.WorkspaceID, sc.Role, m.tokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	ttl := m.tokenTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	rec := &models.Session{
		UserID:    sc.UserID,
		TokenHash: HashToken(token),
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := m.sessions.CreateSession(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("failed to record session: %w", err)
	}

	return token, sc, nil
}

// Validate checks a bearer token cryptographically and then against the
// revocation list. A well-signed, unexpired token whose session record was
// deleted by sign-out is rejected.
func (m *Manager) Validate(ctx context.Context, token string) (*auth.SessionClaims, error) {
	claims, err := auth.ValidateSessionToken(token)
	if err != nil {
		return nil, err
	}

	rec, err := m.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("failed to check session record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("session revoked")
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, fmt.Errorf("session expired")
	}

	return claims, nil
}

// SignOut revokes every session for the user: cleanup hooks run first, then
// all session rows are deleted by user id, falling back to email when no id
// is available. Sign-out never fails; partial failures are logged and the
// caller still treats the user as signed out.
func (m *Manager) SignOut(ctx context.Context, userID, email string) {
	for _, h := range m.hooks {
		if err := h(ctx, userID); err != nil {
			m.logger.Warn("sign-out cleanup hook failed", "user_id", userID, "error", err)
		}
	}

	if userID != "" {
		count, err := m.sessions.DeleteByUserID(ctx, userID)
		if err == nil {
			m.logger.Info("sessions revoked", "user_id", userID, "count", count)
			return
		}
		m.logger.Error("failed to revoke sessions by user id", "user_id", userID, "error", err)
	}

	if email != "" {
		count, err := m.sessions.DeleteByEmail(ctx, email)
		if err == nil {
			m.logger.Info("sessions revoked by email", "email", email, "count", count)
			return
		}
		m.logger.Error("failed to revoke sessions by email", "email", email, "error", err)
	}
}
