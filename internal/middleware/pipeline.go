// pipeline.go composes a route's full validation chain in the fixed stage
// order. Routes declare WHAT they require; the ordering and the error
// mapping live here so no handler can accidentally check permissions before
// authentication.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/kpiflow/kpiflow/internal/auth"
)

// RouteSpec declares one route's requirements. Zero-value fields skip their
// stage: a route with no Permissions entry performs no permission check, a
// route with WorkspaceScoped false skips membership validation.
type RouteSpec struct {
	Methods         []string
	WorkspaceScoped bool
	MinimumRole     auth.Role
	Permissions     []auth.Permission
	AnyPermission   []auth.Permission
	RateLimit       *RateLimitConfig
	Schema          *Schema
}

// Pipeline holds the shared collaborators every route chain draws from.
type Pipeline struct {
	validator   TokenValidator
	memberships MembershipStore
	limiter     RateLimiter
	defaultRate RateLimitConfig
}

func NewPipeline(validator TokenValidator, memberships MembershipStore, limiter RateLimiter) *Pipeline {
	return &Pipeline{
		validator:   validator,
		memberships: memberships,
		limiter:     limiter,
		defaultRate: DefaultRateLimitConfig(),
	}
}

// SetDefaultRate overrides the budget applied to routes without an explicit
// RateLimit entry.
func (p *Pipeline) SetDefaultRate(rate RateLimitConfig) {
	if rate.Requests > 0 && rate.Window > 0 {
		p.defaultRate = rate
	}
}

// Chain builds the middleware chain for a route spec, in the fixed order:
// method, auth, workspace, role, permission, rate limit, schema. A request
// failing multiple stages reports the earliest.
func (p *Pipeline) Chain(spec RouteSpec) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, 7)

	if len(spec.Methods) > 0 {
		chain = append(chain, MethodMiddleware(spec.Methods...))
	}

	chain = append(chain, AuthMiddleware(p.validator))

	if spec.WorkspaceScoped {
		chain = append(chain, WorkspaceMiddleware(p.memberships))
	}
	if spec.MinimumRole != "" {
		chain = append(chain, RequireRole(spec.MinimumRole))
	}
	if len(spec.Permissions) > 0 {
		chain = append(chain, RequireAllPermissions(spec.Permissions...))
	}
	if len(spec.AnyPermission) > 0 {
		chain = append(chain, RequireAnyPermission(spec.AnyPermission...))
	}

	rate := p.defaultRate
	if spec.RateLimit != nil {
		rate = *spec.RateLimit
	}
	chain = append(chain, RateLimitMiddleware(p.limiter, rate))

	if spec.Schema != nil {
		chain = append(chain, SchemaMiddleware(spec.Schema))
	}

	return chain
}

// Public builds the chain for unauthenticated routes (sign-in, invitation
// acceptance): method, rate limit, schema only.
func (p *Pipeline) Public(spec RouteSpec) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, 3)

	if len(spec.Methods) > 0 {
		chain = append(chain, MethodMiddleware(spec.Methods...))
	}

	rate := p.defaultRate
	if spec.RateLimit != nil {
		rate = *spec.RateLimit
	}
	chain = append(chain, RateLimitMiddleware(p.limiter, rate))

	if spec.Schema != nil {
		chain = append(chain, SchemaMiddleware(spec.Schema))
	}

	return chain
}
