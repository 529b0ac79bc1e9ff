// membership_repository.go implements MembershipRepository, providing database
// queries for workspace membership management. The (workspace_id, user_id)
// primary key enforces the at-most-one-membership invariant at the schema level.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kpiflow/kpiflow/internal/db/models"
)

// MembershipRepository handles workspace membership database operations
type MembershipRepository struct {
	db *sql.DB
}

// NewMembershipRepository creates a new MembershipRepository
func NewMembershipRepository(db *sql.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// AddMember adds a user to a workspace with the given role
func (r *MembershipRepository) AddMember(ctx context.Context, m *models.WorkspaceMembership) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}

	query := `
		INSERT INTO workspace_memberships (workspace_id, user_id, role, joined_at, invited_by, invited_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		m.WorkspaceID,
		m.UserID,
		m.Role,
		m.JoinedAt,
		m.InvitedBy,
		m.InvitedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	return nil
}

// GetMembership retrieves a user's membership in a workspace
func (r *MembershipRepository) GetMembership(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMembership, error) {
	query := `
		SELECT workspace_id, user_id, role, joined_at, invited_by, invited_at
		FROM workspace_memberships
		WHERE workspace_id = $1 AND user_id = $2
	`

	m := &models.WorkspaceMembership{}
	err := r.db.QueryRowContext(ctx, query, workspaceID, userID).Scan(
		&m.WorkspaceID,
		&m.UserID,
		&m.Role,
		&m.JoinedAt,
		&m.InvitedBy,
		&m.InvitedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return m, nil
}

// ListByUser retrieves a user's memberships with workspace details,
// most recently joined first. The session context builder relies on this
// ordering to select the default active workspace.
func (r *MembershipRepository) ListByUser(ctx context.Context, userID string) ([]*models.MembershipWithWorkspace, error) {
	query := `
		SELECT m.workspace_id, w.name, w.slug, m.user_id, m.role, m.joined_at
		FROM workspace_memberships m
		INNER JOIN workspaces w ON w.id = m.workspace_id
		WHERE m.user_id = $1
		ORDER BY m.joined_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]*models.MembershipWithWorkspace, 0)
	for rows.Next() {
		m := &models.MembershipWithWorkspace{}
		err := rows.Scan(
			&m.WorkspaceID,
			&m.WorkspaceName,
			&m.WorkspaceSlug,
			&m.UserID,
			&m.Role,
			&m.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}

	return memberships, rows.Err()
}

// ListMembers retrieves all memberships of a workspace
func (r *MembershipRepository) ListMembers(ctx context.Context, workspaceID string) ([]*models.WorkspaceMembership, error) {
	query := `
		SELECT workspace_id, user_id, role, joined_at, invited_by, invited_at
		FROM workspace_memberships
		WHERE workspace_id = $1
		ORDER BY joined_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]*models.WorkspaceMembership, 0)
	for rows.Next() {
		m := &models.WorkspaceMembership{}
		err := rows.Scan(
			&m.WorkspaceID,
			&m.UserID,
			&m.Role,
			&m.JoinedAt,
			&m.InvitedBy,
			&m.InvitedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// UpdateRole changes a member's role in a workspace
func (r *MembershipRepository) UpdateRole(ctx context.Context, workspaceID, userID, role string) error {
	query := `
		UPDATE workspace_memberships
		SET role = $3
		WHERE workspace_id = $1 AND user_id = $2
	`

	_, err := r.db.ExecContext(ctx, query, workspaceID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	return nil
}

// RemoveMember removes a user from a workspace
func (r *MembershipRepository) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	query := `DELETE FROM workspace_memberships WHERE workspace_id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	return nil
}
