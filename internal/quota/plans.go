// Package quota enforces plan-based resource limits. The enforcer only
// reports a decision; callers decide whether to block the write. Usage
// counters are owned by resource handlers, never by this package.
package quota

// Plan identifies a subscription tier.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanStarter    Plan = "STARTER"
	PlanPro        Plan = "PRO"
	PlanEnterprise Plan = "ENTERPRISE"
)

// Unlimited is the sentinel limit value meaning "no ceiling".
const Unlimited = -1

// Limits describes a tier's ceilings and feature gates.
type Limits struct {
	Workspaces       int // max workspaces per owner, Unlimited for no cap
	KPIsPerWorkspace int // max KPIs per workspace, Unlimited for no cap
	Integrations     bool
	AIFeatures       bool
}

// planLimits is the static tier catalogue, ordered cheapest first. Suggestion
// logic walks it in order to find the cheapest accommodating tier.
var planOrder = []Plan{PlanFree, PlanStarter, PlanPro, PlanEnterprise}

var planLimits = map[Plan]Limits{
	PlanFree: {
		Workspaces:       1,
		KPIsPerWorkspace: 5,
		Integrations:     false,
		AIFeatures:       false,
	},
	PlanStarter: {
		Workspaces:       3,
		KPIsPerWorkspace: 25,
		Integrations:     true,
		AIFeatures:       false,
	},
	PlanPro: {
		Workspaces:       10,
		KPIsPerWorkspace: 100,
		Integrations:     true,
		AIFeatures:       true,
	},
	PlanEnterprise: {
		Workspaces:       Unlimited,
		KPIsPerWorkspace: Unlimited,
		Integrations:     true,
		AIFeatures:       true,
	},
}

// LimitsFor returns the limits for a plan. Unknown plans resolve to the FREE
// tier so a corrupted subscription row degrades to the most restrictive
// limits rather than either failing the request or granting unlimited usage.
func LimitsFor(plan Plan) Limits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[PlanFree]
}

// ValidPlan reports whether the string names a known tier.
func ValidPlan(plan string) bool {
	_, ok := planLimits[Plan(plan)]
	return ok
}

// allows reports whether the limit accommodates the given usage.
func allows(limit, usage int) bool {
	return limit == Unlimited || usage <= limit
}
