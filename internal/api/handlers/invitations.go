// invitations.go implements the invitation endpoints. The raw token appears
// exactly once, in the creation response; every later lookup works from the
// stored prefix and hash.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/db/models"
	"github.com/kpiflow/kpiflow/internal/db/repositories"
	"github.com/kpiflow/kpiflow/internal/invitations"
	"github.com/kpiflow/kpiflow/internal/middleware"
	"github.com/kpiflow/kpiflow/internal/telemetry"
	"github.com/kpiflow/kpiflow/internal/validation"
)

// InvitationHandlers handles workspace invitation endpoints.
type InvitationHandlers struct {
	manager *invitations.Manager
	store   *repositories.InvitationRepository
	logger  *slog.Logger
}

// NewInvitationHandlers creates an InvitationHandlers instance.
func NewInvitationHandlers(
	manager *invitations.Manager,
	store *repositories.InvitationRepository,
	logger *slog.Logger,
) *InvitationHandlers {
	return &InvitationHandlers{manager: manager, store: store, logger: logger}
}

// Create invites an email address into the target workspace.
// POST /api/v1/workspaces/:workspaceID/invitations
func (h *InvitationHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := middleware.WorkspaceID(c)
		email := middleware.BodyString(c, "email")
		role := middleware.BodyString(c, "role")

		created, err := h.manager.Create(c.Request.Context(), workspaceID, email, role, middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		telemetry.InvitationsCreatedTotal.Inc()

		c.JSON(http.StatusCreated, gin.H{
			"invitation": invitationJSON(created.Invitation),
			// Returned once. The token is not recoverable after this response.
			"token": created.Token,
		})
	}
}

// List returns all invitations for the target workspace.
// GET /api/v1/workspaces/:workspaceID/invitations
func (h *InvitationHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		invs, err := h.store.ListByWorkspace(c.Request.Context(), middleware.WorkspaceID(c))
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to list invitations", err))
			return
		}

		out := make([]gin.H, 0, len(invs))
		for _, inv := range invs {
			out = append(out, invitationJSON(inv))
		}

		c.JSON(http.StatusOK, gin.H{
			"invitations": out,
		})
	}
}

// Revoke deletes a pending invitation. Accepted invitations are immutable.
// DELETE /api/v1/workspaces/:workspaceID/invitations/:id
func (h *InvitationHandlers) Revoke() gin.HandlerFunc {
	return func(c *gin.Context) {
		invitationID := c.Param("id")
		if err := validation.ValidateID(invitationID); err != nil {
			respondError(c, apierr.New(apierr.KindValidationError, "Invalid invitation id."))
			return
		}

		inv, err := h.store.GetByID(c.Request.Context(), invitationID)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to load invitation", err))
			return
		}
		if inv == nil || inv.WorkspaceID != middleware.WorkspaceID(c) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invitation not found"})
			return
		}

		if err := h.manager.Revoke(c.Request.Context(), invitationID); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Invitation revoked.",
		})
	}
}

// Accept consumes an invitation token on behalf of the signed-in caller and
// grants the membership it carries. The new scope takes effect on the next
// sign-in or workspace switch.
// POST /api/v1/invitations/accept
func (h *InvitationHandlers) Accept() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := middleware.BodyString(c, "token")

		inv, err := h.manager.AcceptByToken(c.Request.Context(), token, middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		telemetry.InvitationsAcceptedTotal.Inc()

		c.JSON(http.StatusOK, gin.H{
			"workspace_id": inv.WorkspaceID,
			"role":         inv.Role,
		})
	}
}

func invitationJSON(inv *models.WorkspaceInvitation) gin.H {
	return gin.H{
		"id":           inv.ID,
		"workspace_id": inv.WorkspaceID,
		"email":        inv.Email,
		"role":         inv.Role,
		"invited_by":   inv.InvitedBy,
		"invited_at":   inv.InvitedAt,
		"expires_at":   inv.ExpiresAt,
		"accepted":     inv.Accepted,
		"accepted_at":  inv.AcceptedAt,
	}
}
