// kpi_repository.go implements KPIRepository for KPI and objective storage.
// Thin by design: quota and permission enforcement happen in the request
// pipeline before these queries run.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kpiflow/kpiflow/internal/db/models"
)

// KPIRepository handles KPI and objective database operations
type KPIRepository struct {
	db *sql.DB
}

// NewKPIRepository creates a new KPIRepository
func NewKPIRepository(db *sql.DB) *KPIRepository {
	return &KPIRepository{db: db}
}

// CreateKPI creates a new KPI
func (r *KPIRepository) CreateKPI(ctx context.Context, kpi *models.KPI) error {
	query := `
		INSERT INTO kpis (workspace_id, objective_id, name, target, current, unit, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		kpi.WorkspaceID,
		kpi.ObjectiveID,
		kpi.Name,
		kpi.Target,
		kpi.Current,
		kpi.Unit,
		kpi.CreatedBy,
	).Scan(&kpi.ID, &kpi.CreatedAt, &kpi.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create KPI: %w", err)
	}

	return nil
}

// GetKPI retrieves a KPI by ID within a workspace
func (r *KPIRepository) GetKPI(ctx context.Context, workspaceID, id string) (*models.KPI, error) {
	query := `
		SELECT id, workspace_id, objective_id, name, target, current, unit, created_by, created_at, updated_at
		FROM kpis
		WHERE workspace_id = $1 AND id = $2
	`

	kpi := &models.KPI{}
	err := r.db.QueryRowContext(ctx, query, workspaceID, id).Scan(
		&kpi.ID,
		&kpi.WorkspaceID,
		&kpi.ObjectiveID,
		&kpi.Name,
		&kpi.Target,
		&kpi.Current,
		&kpi.Unit,
		&kpi.CreatedBy,
		&kpi.CreatedAt,
		&kpi.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get KPI: %w", err)
	}

	return kpi, nil
}

// ListKPIs retrieves all KPIs in a workspace
func (r *KPIRepository) ListKPIs(ctx context.Context, workspaceID string) ([]*models.KPI, error) {
	query := `
		SELECT id, workspace_id, objective_id, name, target, current, unit, created_by, created_at, updated_at
		FROM kpis
		WHERE workspace_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list KPIs: %w", err)
	}
	defer rows.Close()

	kpis := make([]*models.KPI, 0)
	for rows.Next() {
		kpi := &models.KPI{}
		err := rows.Scan(
			&kpi.ID,
			&kpi.WorkspaceID,
			&kpi.ObjectiveID,
			&kpi.Name,
			&kpi.Target,
			&kpi.Current,
			&kpi.Unit,
			&kpi.CreatedBy,
			&kpi.CreatedAt,
			&kpi.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan KPI: %w", err)
		}
		kpis = append(kpis, kpi)
	}

	return kpis, rows.Err()
}

// UpdateKPI updates the mutable fields of a KPI within a workspace.
// Returns true if a row was updated.
func (r *KPIRepository) UpdateKPI(ctx context.Context, kpi *models.KPI) (bool, error) {
	query := `
		UPDATE kpis
		SET objective_id = $3, name = $4, target = $5, current = $6, unit = $7, updated_at = NOW()
		WHERE workspace_id = $1 AND id = $2
	`

	res, err := r.db.ExecContext(ctx, query,
		kpi.WorkspaceID,
		kpi.ID,
		kpi.ObjectiveID,
		kpi.Name,
		kpi.Target,
		kpi.Current,
		kpi.Unit,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update KPI: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count updated KPIs: %w", err)
	}

	return count > 0, nil
}

// DeleteKPI deletes a KPI within a workspace. Returns true if a row was deleted.
func (r *KPIRepository) DeleteKPI(ctx context.Context, workspaceID, id string) (bool, error) {
	query := `DELETE FROM kpis WHERE workspace_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, workspaceID, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete KPI: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted KPIs: %w", err)
	}

	return count > 0, nil
}

// CreateObjective creates a new objective
func (r *KPIRepository) CreateObjective(ctx context.Context, obj *models.Objective) error {
	query := `
		INSERT INTO objectives (workspace_id, title, description, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		obj.WorkspaceID,
		obj.Title,
		obj.Description,
		obj.CreatedBy,
	).Scan(&obj.ID, &obj.CreatedAt, &obj.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create objective: %w", err)
	}

	return nil
}

// ListObjectives retrieves all objectives in a workspace
func (r *KPIRepository) ListObjectives(ctx context.Context, workspaceID string) ([]*models.Objective, error) {
	query := `
		SELECT id, workspace_id, title, description, created_by, created_at, updated_at
		FROM objectives
		WHERE workspace_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list objectives: %w", err)
	}
	defer rows.Close()

	objectives := make([]*models.Objective, 0)
	for rows.Next() {
		obj := &models.Objective{}
		err := rows.Scan(
			&obj.ID,
			&obj.WorkspaceID,
			&obj.Title,
			&obj.Description,
			&obj.CreatedBy,
			&obj.CreatedAt,
			&obj.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan objective: %w", err)
		}
		objectives = append(objectives, obj)
	}

	return objectives, rows.Err()
}

// DeleteObjective deletes an objective within a workspace and detaches its
// KPIs. Returns true if a row was deleted.
func (r *KPIRepository) DeleteObjective(ctx context.Context, workspaceID, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	detach := `UPDATE kpis SET objective_id = NULL WHERE workspace_id = $1 AND objective_id = $2`
	if _, err := tx.ExecContext(ctx, detach, workspaceID, id); err != nil {
		return false, fmt.Errorf("failed to detach KPIs from objective: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM objectives WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete objective: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted objectives: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit objective deletion: %w", err)
	}

	return count > 0, nil
}
