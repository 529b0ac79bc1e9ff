// workspaces.go implements workspace CRUD. Creation is the quota-gated path:
// the plan limit check runs against live usage before the insert, and the
// usage counter moves only after the insert commits.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/auth"
	"github.com/kpiflow/kpiflow/internal/db/models"
	"github.com/kpiflow/kpiflow/internal/db/repositories"
	"github.com/kpiflow/kpiflow/internal/middleware"
	"github.com/kpiflow/kpiflow/internal/quota"
	"github.com/kpiflow/kpiflow/internal/telemetry"
	"github.com/kpiflow/kpiflow/internal/validation"
)

// WorkspaceHandlers handles workspace management endpoints.
type WorkspaceHandlers struct {
	workspaces  *repositories.WorkspaceRepository
	memberships *repositories.MembershipRepository
	billing     *repositories.BillingRepository
	quota       *quota.Enforcer
	logger      *slog.Logger
}

// NewWorkspaceHandlers creates a WorkspaceHandlers instance.
func NewWorkspaceHandlers(
	workspaces *repositories.WorkspaceRepository,
	memberships *repositories.MembershipRepository,
	billing *repositories.BillingRepository,
	enforcer *quota.Enforcer,
	logger *slog.Logger,
) *WorkspaceHandlers {
	return &WorkspaceHandlers{
		workspaces:  workspaces,
		memberships: memberships,
		billing:     billing,
		quota:       enforcer,
		logger:      logger,
	}
}

// quotaExceeded builds the upgrade-prompt error for a denied quota decision.
func quotaExceeded(message, limitType string, d quota.Decision) *apierr.Error {
	telemetry.QuotaDenialsTotal.WithLabelValues(limitType).Inc()

	details := map[string]interface{}{
		"limit":        d.Limit,
		"currentUsage": d.CurrentUsage,
		"plan":         d.Plan,
	}
	if d.SuggestedPlan != "" {
		details["suggestedPlan"] = d.SuggestedPlan
	}
	return apierr.New(apierr.KindPlanLimitExceeded, message).WithDetails(details)
}

// Create creates a workspace owned by the caller, after the plan quota
// check. The creator receives the OWNER membership.
// POST /api/v1/workspaces
func (h *WorkspaceHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)
		name := middleware.BodyString(c, "name")
		slug := middleware.BodyString(c, "slug")

		if err := validation.ValidateName(name); err != nil {
			respondError(c, apierr.Newf(apierr.KindValidationError, "Invalid workspace name: %v.", err))
			return
		}
		if err := validation.ValidateSlug(slug); err != nil {
			respondError(c, apierr.Newf(apierr.KindValidationError, "Invalid workspace slug: %v.", err))
			return
		}

		decision, err := h.quota.CheckWorkspaceCreation(c.Request.Context(), userID)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to check workspace quota", err))
			return
		}
		if !decision.Allowed {
			respondError(c, quotaExceeded(
				"Your plan's workspace limit has been reached. Upgrade to create more workspaces.",
				"workspaces", decision))
			return
		}

		existing, err := h.workspaces.GetBySlug(c.Request.Context(), slug)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to check workspace slug", err))
			return
		}
		if existing != nil {
			respondError(c, apierr.New(apierr.KindValidationError, "A workspace with this slug already exists."))
			return
		}

		ws := &models.Workspace{
			Name:     name,
			Slug:     slug,
			OwnerID:  userID,
			PlanType: string(decision.Plan),
		}
		if err := h.workspaces.CreateWorkspace(c.Request.Context(), ws); err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to create workspace", err))
			return
		}

		membership := &models.WorkspaceMembership{
			WorkspaceID: ws.ID,
			UserID:      userID,
			Role:        string(auth.RoleOwner),
		}
		if err := h.memberships.AddMember(c.Request.Context(), membership); err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to create owner membership", err))
			return
		}

		if err := h.billing.IncrementWorkspaceCount(c.Request.Context(), userID, 1); err != nil {
			// The workspace exists; a stale counter self-corrects on the
			// next usage query against the workspaces table.
			h.logger.Warn("failed to increment workspace usage", "user_id", userID, "error", err)
		}

		c.JSON(http.StatusCreated, gin.H{
			"workspace": workspaceJSON(ws),
		})
	}
}

// List returns every workspace the caller is a member of.
// GET /api/v1/workspaces
func (h *WorkspaceHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)

		memberships, err := h.memberships.ListByUser(c.Request.Context(), userID)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to list workspaces", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"workspaces": memberships,
		})
	}
}

// Get returns the validated target workspace.
// GET /api/v1/workspaces/:workspaceID
func (h *WorkspaceHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := h.workspaces.GetByID(c.Request.Context(), middleware.WorkspaceID(c))
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to load workspace", err))
			return
		}
		if ws == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Workspace not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"workspace": workspaceJSON(ws),
		})
	}
}

// Delete removes the workspace and releases one unit of the owner's
// workspace quota.
// DELETE /api/v1/workspaces/:workspaceID
func (h *WorkspaceHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := middleware.WorkspaceID(c)

		ws, err := h.workspaces.GetByID(c.Request.Context(), workspaceID)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to load workspace", err))
			return
		}
		if ws == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Workspace not found"})
			return
		}

		if err := h.workspaces.DeleteWorkspace(c.Request.Context(), workspaceID); err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to delete workspace", err))
			return
		}

		if err := h.billing.IncrementWorkspaceCount(c.Request.Context(), ws.OwnerID, -1); err != nil {
			h.logger.Warn("failed to decrement workspace usage", "user_id", ws.OwnerID, "error", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Workspace deleted.",
		})
	}
}

func workspaceJSON(ws *models.Workspace) gin.H {
	return gin.H{
		"id":         ws.ID,
		"name":       ws.Name,
		"slug":       ws.Slug,
		"owner_id":   ws.OwnerID,
		"plan_type":  ws.PlanType,
		"created_at": ws.CreatedAt,
		"updated_at": ws.UpdatedAt,
	}
}
