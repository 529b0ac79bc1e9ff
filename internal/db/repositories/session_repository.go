// session_repository.go implements SessionRepository, the revocation list of
// currently-valid sessions. Token validation cross-checks this store so that
// sign-out's bulk delete immediately invalidates every outstanding token.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kpiflow/kpiflow/internal/db/models"
)

// SessionRepository handles session record database operations
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession creates a new session record
func (r *SessionRepository) CreateSession(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query, s.UserID, s.TokenHash, s.ExpiresAt).Scan(
		&s.ID,
		&s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByTokenHash retrieves a session by its token hash
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM sessions
		WHERE token_hash = $1
	`

	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.ExpiresAt,
		&s.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return s, nil
}

// DeleteByUserID deletes ALL session records for a user. This is the
// revocation-list bulk delete behind sign-out. Returns the number deleted.
func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}

	return count, nil
}

// DeleteByEmail deletes all session records for the user holding the given
// email. Fallback path for sign-out when the user id is unavailable.
func (r *SessionRepository) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE user_id IN (SELECT id FROM users WHERE email = $1)
	`
	res, err := r.db.ExecContext(ctx, query, email)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions by email: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}

	return count, nil
}

// DeleteExpired removes session records whose expiry has passed. Run
// opportunistically; expired rows are also rejected at validation time.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}

	return count, nil
}
