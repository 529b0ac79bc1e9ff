package quota

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/kpiflow/kpiflow/internal/db/models"
)

type fakeBillingStore struct {
	sub       *models.Subscription
	subErr    error
	wsUsage   int
	wsErr     error
	kpiUsage  int
	kpiErr    error
}

func (f *fakeBillingStore) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return f.sub, f.subErr
}

func (f *fakeBillingStore) GetWorkspaceUsage(ctx context.Context, userID string) (int, error) {
	return f.wsUsage, f.wsErr
}

func (f *fakeBillingStore) GetKPIUsage(ctx context.Context, workspaceID string) (int, error) {
	return f.kpiUsage, f.kpiErr
}

func newTestEnforcer(store BillingStore) *Enforcer {
	return NewEnforcer(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCheckWorkspaceCreation_NoSubscriptionDefaultsToFree(t *testing.T) {
	// One workspace already owned, no subscription row: the FREE cap of 1
	// denies the second workspace and suggests the cheapest fitting tier.
	e := newTestEnforcer(&fakeBillingStore{sub: nil, wsUsage: 1})

	d, err := e.CheckWorkspaceCreation(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("expected denial at FREE workspace cap")
	}
	if d.Plan != PlanFree {
		t.Errorf("expected plan FREE, got %s", d.Plan)
	}
	if d.CurrentUsage != 1 || d.Limit != 1 {
		t.Errorf("expected usage 1 / limit 1, got %d / %d", d.CurrentUsage, d.Limit)
	}
	if d.SuggestedPlan != PlanStarter {
		t.Errorf("expected suggested plan STARTER, got %s", d.SuggestedPlan)
	}
}

func TestCheckWorkspaceCreation_FirstWorkspaceAllowed(t *testing.T) {
	e := newTestEnforcer(&fakeBillingStore{sub: nil, wsUsage: 0})

	d, err := e.CheckWorkspaceCreation(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Error("expected first workspace to be allowed on FREE")
	}
	if d.SuggestedPlan != "" {
		t.Errorf("expected no suggestion on allow, got %s", d.SuggestedPlan)
	}
}

func TestCheckWorkspaceCreation_BoundaryAtLimit(t *testing.T) {
	sub := &models.Subscription{UserID: "user-1", PlanType: "STARTER", Status: "active"}

	// Usage one under the cap is allowed, usage at the cap is denied.
	e := newTestEnforcer(&fakeBillingStore{sub: sub, wsUsage: 2})
	d, err := e.CheckWorkspaceCreation(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Error("expected allow at usage 2 of 3")
	}

	e = newTestEnforcer(&fakeBillingStore{sub: sub, wsUsage: 3})
	d, err = e.CheckWorkspaceCreation(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("expected denial at usage 3 of 3")
	}
	if d.SuggestedPlan != PlanPro {
		t.Errorf("expected suggested plan PRO, got %s", d.SuggestedPlan)
	}
}

func TestCheckWorkspaceCreation_EnterpriseUnlimited(t *testing.T) {
	sub := &models.Subscription{UserID: "user-1", PlanType: "ENTERPRISE", Status: "active"}
	e := newTestEnforcer(&fakeBillingStore{sub: sub, wsUsage: 5000})

	d, err := e.CheckWorkspaceCreation(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Error("expected unlimited tier to always allow")
	}
	if d.Limit != Unlimited {
		t.Errorf("expected limit %d, got %d", Unlimited, d.Limit)
	}
}

func TestCheckKPICreation_DeniedAtWorkspaceCap(t *testing.T) {
	e := newTestEnforcer(&fakeBillingStore{sub: nil, kpiUsage: 5})

	d, err := e.CheckKPICreation(context.Background(), "owner-1", "ws-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("expected denial at FREE kpi cap of 5")
	}
	if d.SuggestedPlan != PlanStarter {
		t.Errorf("expected suggested plan STARTER, got %s", d.SuggestedPlan)
	}
}

func TestCheckFeatures_GatedByTier(t *testing.T) {
	starter := &models.Subscription{UserID: "user-1", PlanType: "STARTER", Status: "active"}
	e := newTestEnforcer(&fakeBillingStore{sub: starter})

	d, err := e.CheckIntegrations(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Error("expected STARTER to include integrations")
	}

	d, err = e.CheckAIFeatures(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("expected STARTER to exclude AI features")
	}
	if d.SuggestedPlan != PlanPro {
		t.Errorf("expected suggested plan PRO, got %s", d.SuggestedPlan)
	}
}

func TestCheck_UnknownPlanDegradesToFree(t *testing.T) {
	sub := &models.Subscription{UserID: "user-1", PlanType: "LEGACY_GOLD", Status: "active"}
	e := newTestEnforcer(&fakeBillingStore{sub: sub, wsUsage: 1})

	d, err := e.CheckWorkspaceCreation(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Plan != PlanFree {
		t.Errorf("expected unknown plan to degrade to FREE, got %s", d.Plan)
	}
	if d.Allowed {
		t.Error("expected denial under degraded FREE limits")
	}
}

func TestCheck_StoreErrorIsNotADenial(t *testing.T) {
	e := newTestEnforcer(&fakeBillingStore{subErr: errors.New("connection refused")})

	_, err := e.CheckWorkspaceCreation(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
}
