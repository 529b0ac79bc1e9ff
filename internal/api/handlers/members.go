// members.go implements workspace member listing, role changes, and
// removal. The OWNER membership is immutable through this surface: ownership
// transfer is a deliberate non-feature of the membership endpoints.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/auth"
	"github.com/kpiflow/kpiflow/internal/db/repositories"
	"github.com/kpiflow/kpiflow/internal/middleware"
	"github.com/kpiflow/kpiflow/internal/validation"
)

// MemberHandlers handles workspace membership endpoints.
type MemberHandlers struct {
	memberships *repositories.MembershipRepository
	logger      *slog.Logger
}

// NewMemberHandlers creates a MemberHandlers instance.
func NewMemberHandlers(memberships *repositories.MembershipRepository, logger *slog.Logger) *MemberHandlers {
	return &MemberHandlers{memberships: memberships, logger: logger}
}

// List returns all members of the target workspace.
// GET /api/v1/workspaces/:workspaceID/members
func (h *MemberHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		members, err := h.memberships.ListMembers(c.Request.Context(), middleware.WorkspaceID(c))
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to list members", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"members": members,
		})
	}
}

// UpdateRole changes a member's role. The owner's role cannot be changed and
// OWNER cannot be assigned.
// PUT /api/v1/workspaces/:workspaceID/members/:userID
func (h *MemberHandlers) UpdateRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := middleware.WorkspaceID(c)
		targetID := c.Param("userID")

		if err := validation.ValidateID(targetID); err != nil {
			respondError(c, apierr.New(apierr.KindValidationError, "Invalid member id."))
			return
		}

		role, err := auth.ParseRole(middleware.BodyString(c, "role"))
		if err != nil {
			respondError(c, apierr.New(apierr.KindValidationError, "Role must be ADMIN or MEMBER."))
			return
		}
		if role == auth.RoleOwner {
			respondError(c, apierr.New(apierr.KindValidationError, "The OWNER role cannot be assigned."))
			return
		}

		membership, err := h.memberships.GetMembership(c.Request.Context(), workspaceID, targetID)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to load membership", err))
			return
		}
		if membership == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
			return
		}
		if membership.Role == string(auth.RoleOwner) {
			respondError(c, apierr.New(apierr.KindValidationError, "The workspace owner's role cannot be changed."))
			return
		}

		if err := h.memberships.UpdateRole(c.Request.Context(), workspaceID, targetID, string(role)); err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to update member role", err))
			return
		}

		h.logger.Info("member role updated",
			"workspace_id", workspaceID,
			"user_id", targetID,
			"role", role,
			"updated_by", middleware.UserID(c))

		c.JSON(http.StatusOK, gin.H{
			"message": "Member role updated.",
		})
	}
}

// Remove removes a member from the workspace. The owner cannot be removed.
// DELETE /api/v1/workspaces/:workspaceID/members/:userID
func (h *MemberHandlers) Remove() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := middleware.WorkspaceID(c)
		targetID := c.Param("userID")

		if err := validation.ValidateID(targetID); err != nil {
			respondError(c, apierr.New(apierr.KindValidationError, "Invalid member id."))
			return
		}

		membership, err := h.memberships.GetMembership(c.Request.Context(), workspaceID, targetID)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to load membership", err))
			return
		}
		if membership == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
			return
		}
		if membership.Role == string(auth.RoleOwner) {
			respondError(c, apierr.New(apierr.KindValidationError, "The workspace owner cannot be removed."))
			return
		}

		if err := h.memberships.RemoveMember(c.Request.Context(), workspaceID, targetID); err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to remove member", err))
			return
		}

		h.logger.Info("member removed",
			"workspace_id", workspaceID,
			"user_id", targetID,
			"removed_by", middleware.UserID(c))

		c.JSON(http.StatusOK, gin.H{
			"message": "Member removed.",
		})
	}
}
