// workspace_repository.go implements WorkspaceRepository, providing database
// queries for workspace CRUD and ownership lookups.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kpiflow/kpiflow/internal/db/models"
)

// WorkspaceRepository handles workspace database operations
type WorkspaceRepository struct {
	db *sql.DB
}

// NewWorkspaceRepository creates a new WorkspaceRepository
func NewWorkspaceRepository(db *sql.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// CreateWorkspace creates a new workspace
func (r *WorkspaceRepository) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	query := `
		INSERT INTO workspaces (name, slug, owner_id, plan_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, ws.Name, ws.Slug, ws.OwnerID, ws.PlanType).Scan(
		&ws.ID,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	return nil
}

// GetByID retrieves a workspace by ID
func (r *WorkspaceRepository) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	query := `
		SELECT id, name, slug, owner_id, plan_type, created_at, updated_at
		FROM workspaces
		WHERE id = $1
	`

	ws := &models.Workspace{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ws.ID,
		&ws.Name,
		&ws.Slug,
		&ws.OwnerID,
		&ws.PlanType,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	return ws, nil
}

// GetBySlug retrieves a workspace by its URL-safe slug
func (r *WorkspaceRepository) GetBySlug(ctx context.Context, slug string) (*models.Workspace, error) {
	query := `
		SELECT id, name, slug, owner_id, plan_type, created_at, updated_at
		FROM workspaces
		WHERE slug = $1
	`

	ws := &models.Workspace{}
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&ws.ID,
		&ws.Name,
		&ws.Slug,
		&ws.OwnerID,
		&ws.PlanType,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace by slug: %w", err)
	}

	return ws, nil
}

// ListOwnedBy retrieves all workspaces owned by a user
func (r *WorkspaceRepository) ListOwnedBy(ctx context.Context, ownerID string) ([]*models.Workspace, error) {
	query := `
		SELECT id, name, slug, owner_id, plan_type, created_at, updated_at
		FROM workspaces
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	workspaces := make([]*models.Workspace, 0)
	for rows.Next() {
		ws := &models.Workspace{}
		err := rows.Scan(
			&ws.ID,
			&ws.Name,
			&ws.Slug,
			&ws.OwnerID,
			&ws.PlanType,
			&ws.CreatedAt,
			&ws.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		workspaces = append(workspaces, ws)
	}

	return workspaces, rows.Err()
}

// DeleteWorkspace deletes a workspace and (via cascade) its memberships,
// invitations, objectives, and KPIs.
func (r *WorkspaceRepository) DeleteWorkspace(ctx context.Context, id string) error {
	query := `DELETE FROM workspaces WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	return nil
}
