package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kpiflow/kpiflow/internal/db/models"
)

// BillingStore is the subset of billing persistence the enforcer reads.
// *repositories.BillingRepository satisfies it.
type BillingStore interface {
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	GetWorkspaceUsage(ctx context.Context, userID string) (int, error)
	GetKPIUsage(ctx context.Context, workspaceID string) (int, error)
}

// Decision is the result of a quota check. Allowed=false never carries an
// error; store failures are returned separately so callers can distinguish
// "over quota" from "could not determine quota".
type Decision struct {
	Allowed       bool
	CurrentUsage  int
	Limit         int
	Plan          Plan
	SuggestedPlan Plan // set only when Allowed is false and an upgrade would help
}

// Enforcer answers "may this user create one more X" questions.
type Enforcer struct {
	store  BillingStore
	logger *slog.Logger
}

func NewEnforcer(store BillingStore, logger *slog.Logger) *Enforcer {
	return &Enforcer{store: store, logger: logger}
}

// planFor resolves the user's plan. A missing subscription row means the
// user never upgraded and is treated as FREE, indistinguishable from a
// subscription that was cancelled and deleted.
func (e *Enforcer) planFor(ctx context.Context, userID string) (Plan, error) {
	sub, err := e.store.GetSubscription(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil {
		return PlanFree, nil
	}
	if !ValidPlan(sub.PlanType) {
		e.logger.Warn("unknown plan type on subscription, treating as FREE",
			"user_id", userID, "plan_type", sub.PlanType)
		return PlanFree, nil
	}
	return Plan(sub.PlanType), nil
}

// CheckWorkspaceCreation decides whether the user may create one more
// workspace. The check is usage+1 against the plan ceiling, so a FREE user
// who already owns 1 workspace is denied.
func (e *Enforcer) CheckWorkspaceCreation(ctx context.Context, userID string) (Decision, error) {
	plan, err := e.planFor(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	usage, err := e.store.GetWorkspaceUsage(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load workspace usage: %w", err)
	}
	return e.decide(plan, usage, func(l Limits) int { return l.Workspaces }), nil
}

// CheckKPICreation decides whether one more KPI may be created in the
// workspace. The plan is the owner's plan, not the acting member's.
func (e *Enforcer) CheckKPICreation(ctx context.Context, ownerID, workspaceID string) (Decision, error) {
	plan, err := e.planFor(ctx, ownerID)
	if err != nil {
		return Decision{}, err
	}
	usage, err := e.store.GetKPIUsage(ctx, workspaceID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load kpi usage: %w", err)
	}
	return e.decide(plan, usage, func(l Limits) int { return l.KPIsPerWorkspace }), nil
}

// CheckIntegrations reports whether the plan includes third-party
// integrations.
func (e *Enforcer) CheckIntegrations(ctx context.Context, userID string) (Decision, error) {
	return e.checkFeature(ctx, userID, func(l Limits) bool { return l.Integrations })
}

// CheckAIFeatures reports whether the plan includes AI features.
func (e *Enforcer) CheckAIFeatures(ctx context.Context, userID string) (Decision, error) {
	return e.checkFeature(ctx, userID, func(l Limits) bool { return l.AIFeatures })
}

func (e *Enforcer) checkFeature(ctx context.Context, userID string, enabled func(Limits) bool) (Decision, error) {
	plan, err := e.planFor(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Allowed: enabled(LimitsFor(plan)), Plan: plan}
	if !d.Allowed {
		for _, p := range planOrder {
			if enabled(planLimits[p]) {
				d.SuggestedPlan = p
				break
			}
		}
	}
	return d, nil
}

// decide applies the usage+1 rule and, on denial, suggests the cheapest tier
// whose ceiling accommodates the attempted total.
func (e *Enforcer) decide(plan Plan, usage int, limit func(Limits) int) Decision {
	l := limit(LimitsFor(plan))
	d := Decision{
		Allowed:      allows(l, usage+1),
		CurrentUsage: usage,
		Limit:        l,
		Plan:         plan,
	}
	if !d.Allowed {
		for _, p := range planOrder {
			if allows(limit(planLimits[p]), usage+1) {
				d.SuggestedPlan = p
				break
			}
		}
	}
	return d
}
