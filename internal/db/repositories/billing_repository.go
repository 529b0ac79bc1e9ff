// billing_repository.go implements BillingRepository, providing database
// queries for subscription records and live usage counters. Counters are
// mutated only by resource create/delete handlers; the quota enforcer reads
// them but never writes.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kpiflow/kpiflow/internal/db/models"
)

// BillingRepository handles subscription and usage tracking database operations
type BillingRepository struct {
	db *sqlx.DB
}

// NewBillingRepository creates a new BillingRepository
func NewBillingRepository(db *sqlx.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

type subscriptionRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	PlanType  string    `db:"plan_type"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// GetSubscription retrieves the subscription record for a user.
// Returns (nil, nil) when no record exists; callers treat that as the FREE tier.
func (r *BillingRepository) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var row subscriptionRow
	query := `SELECT * FROM subscriptions WHERE user_id = $1`
	err := r.db.GetContext(ctx, &row, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &models.Subscription{
		ID:        row.ID,
		UserID:    row.UserID,
		PlanType:  row.PlanType,
		Status:    row.Status,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// UpsertSubscription creates or updates a user's subscription record. Fed by
// the billing-provider webhook collaborator.
func (r *BillingRepository) UpsertSubscription(ctx context.Context, userID, planType, status string) error {
	query := `
		INSERT INTO subscriptions (user_id, plan_type, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET plan_type = $2, status = $3, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, userID, planType, status)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return nil
}

// GetWorkspaceUsage retrieves the workspace counter for a user.
// Missing rows count as zero usage.
func (r *BillingRepository) GetWorkspaceUsage(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT workspace_count FROM usage_tracking WHERE user_id = $1`
	err := r.db.GetContext(ctx, &count, query, userID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get workspace usage: %w", err)
	}

	return count, nil
}

// IncrementWorkspaceCount adjusts a user's workspace counter by delta.
// The counter floors at zero so delete/create races never go negative.
func (r *BillingRepository) IncrementWorkspaceCount(ctx context.Context, userID string, delta int) error {
	query := `
		INSERT INTO usage_tracking (user_id, workspace_count)
		VALUES ($1, GREATEST($2, 0))
		ON CONFLICT (user_id)
		DO UPDATE SET workspace_count = GREATEST(usage_tracking.workspace_count + $2, 0), updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, userID, delta)
	if err != nil {
		return fmt.Errorf("failed to update workspace usage: %w", err)
	}

	return nil
}

// GetKPIUsage retrieves the KPI counter for a workspace.
// Missing rows count as zero usage.
func (r *BillingRepository) GetKPIUsage(ctx context.Context, workspaceID string) (int, error) {
	var count int
	query := `SELECT kpi_count FROM workspace_usage WHERE workspace_id = $1`
	err := r.db.GetContext(ctx, &count, query, workspaceID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get KPI usage: %w", err)
	}

	return count, nil
}

// IncrementKPICount adjusts a workspace's KPI counter by delta.
func (r *BillingRepository) IncrementKPICount(ctx context.Context, workspaceID string, delta int) error {
	query := `
		INSERT INTO workspace_usage (workspace_id, kpi_count)
		VALUES ($1, GREATEST($2, 0))
		ON CONFLICT (workspace_id)
		DO UPDATE SET kpi_count = GREATEST(workspace_usage.kpi_count + $2, 0), updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, workspaceID, delta)
	if err != nil {
		return fmt.Errorf("failed to update KPI usage: %w", err)
	}

	return nil
}
