package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var subscriptionCols = []string{"id", "user_id", "plan_type", "status", "created_at", "updated_at"}

func newBillingRepo(t *testing.T) (*BillingRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBillingRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestGetSubscription_Found(t *testing.T) {
	repo, mock := newBillingRepo(t)

	mock.ExpectQuery("SELECT \\* FROM subscriptions WHERE user_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(subscriptionCols).
			AddRow("sub-1", "user-1", "PRO", "active", time.Now(), time.Now()))

	sub, err := repo.GetSubscription(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub == nil {
		t.Fatal("expected subscription, got nil")
	}
	if sub.PlanType != "PRO" {
		t.Errorf("PlanType = %s, want PRO", sub.PlanType)
	}
}

func TestGetSubscription_MissingRecordIsNotAnError(t *testing.T) {
	repo, mock := newBillingRepo(t)

	// No subscription row: callers treat nil as the FREE tier rather than
	// failing the request on missing billing data.
	mock.ExpectQuery("SELECT \\* FROM subscriptions WHERE user_id").
		WillReturnRows(sqlmock.NewRows(subscriptionCols))

	sub, err := repo.GetSubscription(context.Background(), "user-without-billing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != nil {
		t.Error("expected nil subscription")
	}
}

func TestGetWorkspaceUsage_MissingRowIsZero(t *testing.T) {
	repo, mock := newBillingRepo(t)

	mock.ExpectQuery("SELECT workspace_count FROM usage_tracking").
		WillReturnRows(sqlmock.NewRows([]string{"workspace_count"}))

	count, err := repo.GetWorkspaceUsage(context.Background(), "new-user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestIncrementWorkspaceCount_Upserts(t *testing.T) {
	repo, mock := newBillingRepo(t)

	mock.ExpectExec("INSERT INTO usage_tracking.*ON CONFLICT").
		WithArgs("user-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.IncrementWorkspaceCount(context.Background(), "user-1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetKPIUsage(t *testing.T) {
	repo, mock := newBillingRepo(t)

	mock.ExpectQuery("SELECT kpi_count FROM workspace_usage").
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"kpi_count"}).AddRow(4))

	count, err := repo.GetKPIUsage(context.Background(), "ws-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
}

func TestUpsertSubscription(t *testing.T) {
	repo, mock := newBillingRepo(t)

	mock.ExpectExec("INSERT INTO subscriptions.*ON CONFLICT").
		WithArgs("user-1", "STARTER", "active").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertSubscription(context.Background(), "user-1", "STARTER", "active"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
