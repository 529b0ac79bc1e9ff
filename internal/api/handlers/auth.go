// auth.go implements sign-in via the external identity provider, sign-out,
// and the current-session introspection endpoint.
package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/auth"
	"github.com/kpiflow/kpiflow/internal/auth/oidc"
	"github.com/kpiflow/kpiflow/internal/db/models"
	"github.com/kpiflow/kpiflow/internal/db/repositories"
	"github.com/kpiflow/kpiflow/internal/invitations"
	"github.com/kpiflow/kpiflow/internal/middleware"
	"github.com/kpiflow/kpiflow/internal/quota"
	"github.com/kpiflow/kpiflow/internal/session"
	"github.com/kpiflow/kpiflow/internal/telemetry"
)

// IdentityProvider is the identity-provider surface sign-in needs.
// *oidc.Provider satisfies it.
type IdentityProvider interface {
	AuthURL(state string) string
	Authenticate(ctx context.Context, code string) (*oidc.Identity, error)
}

// AuthHandlers handles sign-in, sign-out, and session introspection.
type AuthHandlers struct {
	provider    IdentityProvider
	users       *repositories.UserRepository
	workspaces  *repositories.WorkspaceRepository
	memberships *repositories.MembershipRepository
	billing     *repositories.BillingRepository
	sessions    *session.Manager
	invitations *invitations.Manager
	logger      *slog.Logger
}

// NewAuthHandlers creates an AuthHandlers instance. provider may be nil when
// the identity provider is not configured; sign-in then reports an error.
func NewAuthHandlers(
	provider IdentityProvider,
	users *repositories.UserRepository,
	workspaces *repositories.WorkspaceRepository,
	memberships *repositories.MembershipRepository,
	billing *repositories.BillingRepository,
	sessions *session.Manager,
	invitationManager *invitations.Manager,
	logger *slog.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		provider:    provider,
		users:       users,
		workspaces:  workspaces,
		memberships: memberships,
		billing:     billing,
		sessions:    sessions,
		invitations: invitationManager,
		logger:      logger,
	}
}

// SignInURL returns the identity provider's authorization URL and a fresh
// state value the client must echo back on the callback.
// GET /api/v1/auth/sign-in
func (h *AuthHandlers) SignInURL() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.provider == nil {
			respondError(c, apierr.New(apierr.KindNetworkError, "Sign-in is not available."))
			return
		}

		sb := make([]byte, 24)
		if _, err := rand.Read(sb); err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to generate state", err))
			return
		}
		state := base64.RawURLEncoding.EncodeToString(sb)

		c.JSON(http.StatusOK, gin.H{
			"auth_url": h.provider.AuthURL(state),
			"state":    state,
		})
	}
}

// Callback exchanges the authorization code for a verified identity, upserts
// the user, folds any pending invitations into memberships, and issues a
// session token.
// POST /api/v1/auth/callback
func (h *AuthHandlers) Callback() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.provider == nil {
			respondError(c, apierr.New(apierr.KindNetworkError, "Sign-in is not available."))
			return
		}

		code := middleware.BodyString(c, "code")

		identity, err := h.provider.Authenticate(c.Request.Context(), code)
		if err != nil {
			h.logger.Warn("identity provider exchange failed", "error", err)
			respondError(c, apierr.New(apierr.KindSessionExpired, auth.SessionExpiredMessage))
			return
		}

		user, created, err := h.upsertUser(c.Request.Context(), identity)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to store user", err))
			return
		}

		// Pending invitations become memberships before the session context
		// is built, so a first sign-in lands in the invited workspace.
		accepted, joined, perr := h.invitations.ProcessPending(c.Request.Context(), user.Email, user.ID)
		if perr != nil {
			h.logger.Warn("failed to process pending invitations", "user_id", user.ID, "error", perr)
		} else if accepted > 0 {
			h.logger.Info("accepted pending invitations at sign-in",
				"user_id", user.ID, "count", accepted, "new_memberships", len(joined))
		}

		// A brand-new user with no invitations gets a default workspace so
		// the first session is workspace-scoped.
		if created && accepted == 0 {
			h.bootstrapWorkspace(c.Request.Context(), user)
		}

		token, sctx, err := h.sessions.SignIn(c.Request.Context(), user)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to create session", err))
			return
		}
		telemetry.SessionsIssuedTotal.Inc()

		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user": gin.H{
				"id":    user.ID,
				"email": user.Email,
				"name":  user.Name,
			},
			"workspace_id": sctx.WorkspaceID,
			"role":         sctx.Role,
			"scoped":       sctx.Scoped,
		})
	}
}

// upsertUser finds or creates the account for a verified identity, refreshing
// the display name and subject binding when the provider reports new values.
// The second return reports whether the account was just created.
func (h *AuthHandlers) upsertUser(ctx context.Context, identity *oidc.Identity) (*models.User, bool, error) {
	user, err := h.users.GetUserByEmail(ctx, identity.Email)
	if err != nil {
		return nil, false, err
	}

	if user == nil {
		sub := identity.Subject
		user = &models.User{
			Email:   identity.Email,
			Name:    identity.Name,
			OIDCSub: &sub,
		}
		if err := h.users.CreateUser(ctx, user); err != nil {
			return nil, false, err
		}
		return user, true, nil
	}

	changed := false
	if user.Name != identity.Name {
		user.Name = identity.Name
		changed = true
	}
	if user.OIDCSub == nil || *user.OIDCSub != identity.Subject {
		sub := identity.Subject
		user.OIDCSub = &sub
		changed = true
	}
	if changed {
		if err := h.users.UpdateUser(ctx, user); err != nil {
			return nil, false, err
		}
	}

	return user, false, nil
}

// bootstrapWorkspace creates the default workspace for a first sign-in.
// Best effort: a failure leaves the user workspaceless and unscoped, which the
// workspace validator rejects on scoped routes until they create one.
func (h *AuthHandlers) bootstrapWorkspace(ctx context.Context, user *models.User) {
	name := "My Workspace"
	if user.Name != "" {
		name = user.Name + "'s Workspace"
	}

	ws := &models.Workspace{
		Name:     name,
		Slug:     "ws-" + uuid.NewString()[:8],
		OwnerID:  user.ID,
		PlanType: string(quota.PlanFree),
	}
	if err := h.workspaces.CreateWorkspace(ctx, ws); err != nil {
		h.logger.Error("failed to bootstrap default workspace", "user_id", user.ID, "error", err)
		return
	}

	membership := &models.WorkspaceMembership{
		WorkspaceID: ws.ID,
		UserID:      user.ID,
		Role:        string(auth.RoleOwner),
	}
	if err := h.memberships.AddMember(ctx, membership); err != nil {
		h.logger.Error("failed to create bootstrap owner membership",
			"user_id", user.ID, "workspace_id", ws.ID, "error", err)
		return
	}

	if err := h.billing.UpsertSubscription(ctx, user.ID, string(quota.PlanFree), "active"); err != nil {
		h.logger.Warn("failed to create bootstrap subscription", "user_id", user.ID, "error", err)
	}
	if err := h.billing.IncrementWorkspaceCount(ctx, user.ID, 1); err != nil {
		h.logger.Warn("failed to increment workspace usage", "user_id", user.ID, "error", err)
	}

	h.logger.Info("bootstrapped default workspace", "user_id", user.ID, "workspace_id", ws.ID)
}

// SignOut revokes every session the caller holds. Revocation never fails
// from the client's perspective.
// POST /api/v1/auth/sign-out
func (h *AuthHandlers) SignOut() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)
		email := c.GetString(middleware.ContextEmail)

		h.sessions.SignOut(c.Request.Context(), userID, email)
		telemetry.SessionsRevokedTotal.Inc()

		c.JSON(http.StatusOK, gin.H{
			"message": "Signed out.",
		})
	}
}

// Me returns the caller's identity and workspace memberships.
// GET /api/v1/auth/me
func (h *AuthHandlers) Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)

		user, err := h.users.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to load user", err))
			return
		}
		if user == nil {
			respondError(c, apierr.New(apierr.KindSessionExpired, auth.SessionExpiredMessage))
			return
		}

		memberships, err := h.memberships.ListByUser(c.Request.Context(), userID)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to load memberships", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": gin.H{
				"id":    user.ID,
				"email": user.Email,
				"name":  user.Name,
			},
			"memberships": memberships,
		})
	}
}
