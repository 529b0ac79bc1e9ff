// invitation_repository.go implements InvitationRepository, providing database
// queries for the workspace invitation lifecycle. AcceptWithMembership is the
// single transactional boundary of the engine: membership insert and
// mark-accepted must commit together so the invitation state machine stays
// sound. Nothing else shares that transaction.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kpiflow/kpiflow/internal/db/models"
)

// InvitationRepository handles workspace invitation database operations
type InvitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository creates a new InvitationRepository
func NewInvitationRepository(db *sqlx.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// invitationRow maps the workspace_invitations table for sqlx scanning.
type invitationRow struct {
	ID          string     `db:"id"`
	WorkspaceID string     `db:"workspace_id"`
	Email       string     `db:"email"`
	Role        string     `db:"role"`
	InvitedBy   string     `db:"invited_by"`
	InvitedAt   time.Time  `db:"invited_at"`
	ExpiresAt   time.Time  `db:"expires_at"`
	Accepted    bool       `db:"accepted"`
	AcceptedAt  *time.Time `db:"accepted_at"`
	TokenHash   string     `db:"token_hash"`
	TokenPrefix string     `db:"token_prefix"`
}

func (row *invitationRow) toModel() *models.WorkspaceInvitation {
	return &models.WorkspaceInvitation{
		ID:          row.ID,
		WorkspaceID: row.WorkspaceID,
		Email:       row.Email,
		Role:        row.Role,
		InvitedBy:   row.InvitedBy,
		InvitedAt:   row.InvitedAt,
		ExpiresAt:   row.ExpiresAt,
		Accepted:    row.Accepted,
		AcceptedAt:  row.AcceptedAt,
		TokenHash:   row.TokenHash,
		TokenPrefix: row.TokenPrefix,
	}
}

// CreateInvitation creates a new invitation
func (r *InvitationRepository) CreateInvitation(ctx context.Context, inv *models.WorkspaceInvitation) error {
	query := `
		INSERT INTO workspace_invitations
			(workspace_id, email, role, invited_by, invited_at, expires_at, accepted, token_hash, token_prefix)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		inv.WorkspaceID,
		inv.Email,
		inv.Role,
		inv.InvitedBy,
		inv.InvitedAt,
		inv.ExpiresAt,
		inv.TokenHash,
		inv.TokenPrefix,
	).Scan(&inv.ID)

	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil
}

// GetByID retrieves an invitation by ID
func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*models.WorkspaceInvitation, error) {
	var row invitationRow
	query := `SELECT * FROM workspace_invitations WHERE id = $1`
	err := r.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return row.toModel(), nil
}

// GetPendingByEmail retrieves all pending, unexpired invitations for an email,
// most recently invited first.
func (r *InvitationRepository) GetPendingByEmail(ctx context.Context, email string, now time.Time) ([]*models.WorkspaceInvitation, error) {
	var rows []invitationRow
	query := `
		SELECT * FROM workspace_invitations
		WHERE email = $1 AND accepted = FALSE AND expires_at > $2
		ORDER BY invited_at DESC
	`
	err := r.db.SelectContext(ctx, &rows, query, email, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending invitations: %w", err)
	}

	invitations := make([]*models.WorkspaceInvitation, 0, len(rows))
	for i := range rows {
		invitations = append(invitations, rows[i].toModel())
	}
	return invitations, nil
}

// ListByWorkspace retrieves all invitations for a workspace, most recently
// invited first.
func (r *InvitationRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.WorkspaceInvitation, error) {
	var rows []invitationRow
	query := `
		SELECT * FROM workspace_invitations
		WHERE workspace_id = $1
		ORDER BY invited_at DESC
	`
	err := r.db.SelectContext(ctx, &rows, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	invitations := make([]*models.WorkspaceInvitation, 0, len(rows))
	for i := range rows {
		invitations = append(invitations, rows[i].toModel())
	}
	return invitations, nil
}

// GetByTokenPrefix retrieves candidate invitations matching a token prefix.
// The caller narrows the match with a bcrypt comparison against token_hash.
func (r *InvitationRepository) GetByTokenPrefix(ctx context.Context, prefix string) ([]*models.WorkspaceInvitation, error) {
	var rows []invitationRow
	query := `SELECT * FROM workspace_invitations WHERE token_prefix = $1`
	err := r.db.SelectContext(ctx, &rows, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get invitations by prefix: %w", err)
	}

	invitations := make([]*models.WorkspaceInvitation, 0, len(rows))
	for i := range rows {
		invitations = append(invitations, rows[i].toModel())
	}
	return invitations, nil
}

// MarkAccepted marks an invitation accepted without touching memberships.
// Used for the idempotent fold when the user already holds a membership in the
// invitation's workspace.
func (r *InvitationRepository) MarkAccepted(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE workspace_invitations
		SET accepted = TRUE, accepted_at = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	return nil
}

// AcceptWithMembership atomically creates the membership and marks the
// invitation accepted. Both writes commit together or neither does; a partial
// state (membership without accepted flag, or vice versa) would either
// re-trigger processing or strand the invitation.
func (r *InvitationRepository) AcceptWithMembership(ctx context.Context, inv *models.WorkspaceInvitation, userID string, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_memberships (workspace_id, user_id, role, joined_at, invited_by, invited_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inv.WorkspaceID, userID, inv.Role, now, inv.InvitedBy, inv.InvitedAt)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE workspace_invitations
		SET accepted = TRUE, accepted_at = $2
		WHERE id = $1
	`, inv.ID, now)
	if err != nil {
		return fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	return tx.Commit()
}

// DeleteExpired deletes non-accepted invitations whose expiry has passed.
// Accepted invitations are exempt regardless of expires_at. Returns the
// number of rows deleted.
func (r *InvitationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM workspace_invitations WHERE accepted = FALSE AND expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted invitations: %w", err)
	}

	return count, nil
}

// Delete removes an invitation by ID
func (r *InvitationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM workspace_invitations WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}

	return nil
}
