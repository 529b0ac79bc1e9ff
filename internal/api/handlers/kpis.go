// kpis.go implements KPI and objective CRUD inside a validated workspace
// scope. KPI creation is quota-gated against the workspace owner's plan, not
// the acting member's.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/db/models"
	"github.com/kpiflow/kpiflow/internal/db/repositories"
	"github.com/kpiflow/kpiflow/internal/middleware"
	"github.com/kpiflow/kpiflow/internal/quota"
	"github.com/kpiflow/kpiflow/internal/validation"
)

// KPIHandlers handles KPI and objective endpoints.
type KPIHandlers struct {
	kpis       *repositories.KPIRepository
	workspaces *repositories.WorkspaceRepository
	billing    *repositories.BillingRepository
	quota      *quota.Enforcer
	logger     *slog.Logger
}

// NewKPIHandlers creates a KPIHandlers instance.
func NewKPIHandlers(
	kpis *repositories.KPIRepository,
	workspaces *repositories.WorkspaceRepository,
	billing *repositories.BillingRepository,
	enforcer *quota.Enforcer,
	logger *slog.Logger,
) *KPIHandlers {
	return &KPIHandlers{
		kpis:       kpis,
		workspaces: workspaces,
		billing:    billing,
		quota:      enforcer,
		logger:     logger,
	}
}

// ListKPIs returns all KPIs in the target workspace.
// GET /api/v1/workspaces/:workspaceID/kpis
func (h *KPIHandlers) ListKPIs() gin.HandlerFunc {
	return func(c *gin.Context) {
		kpis, err := h.kpis.ListKPIs(c.Request.Context(), middleware.WorkspaceID(c))
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to list KPIs", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"kpis": kpis,
		})
	}
}

// GetKPI returns a single KPI.
// GET /api/v1/workspaces/:workspaceID/kpis/:id
func (h *KPIHandlers) GetKPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := validation.ValidateID(id); err != nil {
			respondError(c, apierr.New(apierr.KindValidationError, "Invalid KPI id."))
			return
		}

		kpi, err := h.kpis.GetKPI(c.Request.Context(), middleware.WorkspaceID(c), id)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to load KPI", err))
			return
		}
		if kpi == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "KPI not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"kpi": kpi,
		})
	}
}

// CreateKPI creates a KPI after the owner-plan quota check and advances the
// workspace's KPI usage counter.
// POST /api/v1/workspaces/:workspaceID/kpis
func (h *KPIHandlers) CreateKPI() gin.HandlerFunc {
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

		decision, err := h.quota.CheckKPICreation(c.Request.Context(), ws.OwnerID, workspaceID)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to check KPI quota", err))
			return
		}
		if !decision.Allowed {
			respondError(c, quotaExceeded(
				"This workspace's KPI limit has been reached. Upgrade the owner's plan to add more KPIs.",
				"kpis", decision))
			return
		}

		kpi := &models.KPI{
			WorkspaceID: workspaceID,
			Name:        middleware.BodyString(c, "name"),
			Unit:        middleware.BodyString(c, "unit"),
			CreatedBy:   middleware.UserID(c),
		}
		body := middleware.Body(c)
		if target, ok := body["target"].(float64); ok {
			kpi.Target = target
		}
		if current, ok := body["current"].(float64); ok {
			kpi.Current = current
		}
		if objectiveID := middleware.BodyString(c, "objective_id"); objectiveID != "" {
			kpi.ObjectiveID = &objectiveID
		}

		if err := h.kpis.CreateKPI(c.Request.Context(), kpi); err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to create KPI", err))
			return
		}

		if err := h.billing.IncrementKPICount(c.Request.Context(), workspaceID, 1); err != nil {
			h.logger.Warn("failed to increment KPI usage", "workspace_id", workspaceID, "error", err)
		}

		c.JSON(http.StatusCreated, gin.H{
			"kpi": kpi,
		})
	}
}

// UpdateKPI updates the mutable fields of a KPI. Absent body fields keep
// their stored values.
// PUT /api/v1/workspaces/:workspaceID/kpis/:id
func (h *KPIHandlers) UpdateKPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := middleware.WorkspaceID(c)
		id := c.Param("id")
		if err := validation.ValidateID(id); err != nil {
			respondError(c, apierr.New(apierr.KindValidationError, "Invalid KPI id."))
			return
		}

		kpi, err := h.kpis.GetKPI(c.Request.Context(), workspaceID, id)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to load KPI", err))
			return
		}
		if kpi == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "KPI not found"})
			return
		}

		body := middleware.Body(c)
		if name, ok := body["name"].(string); ok && name != "" {
			kpi.Name = name
		}
		if unit, ok := body["unit"].(string); ok {
			kpi.Unit = unit
		}
		if target, ok := body["target"].(float64); ok {
			kpi.Target = target
		}
		if current, ok := body["current"].(float64); ok {
			kpi.Current = current
		}
		if objectiveID, ok := body["objective_id"].(string); ok {
			if objectiveID == "" {
				kpi.ObjectiveID = nil
			} else {
				kpi.ObjectiveID = &objectiveID
			}
		}

		updated, err := h.kpis.UpdateKPI(c.Request.Context(), kpi)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to update KPI", err))
			return
		}
		if !updated {
			c.JSON(http.StatusNotFound, gin.H{"error": "KPI not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"kpi": kpi,
		})
	}
}

// DeleteKPI deletes a KPI and releases one unit of the workspace's KPI quota.
// DELETE /api/v1/workspaces/:workspaceID/kpis/:id
func (h *KPIHandlers) DeleteKPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := middleware.WorkspaceID(c)
		id := c.Param("id")
		if err := validation.ValidateID(id); err != nil {
			respondError(c, apierr.New(apierr.KindValidationError, "Invalid KPI id."))
			return
		}

		deleted, err := h.kpis.DeleteKPI(c.Request.Context(), workspaceID, id)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to delete KPI", err))
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "KPI not found"})
			return
		}

		if err := h.billing.IncrementKPICount(c.Request.Context(), workspaceID, -1); err != nil {
			h.logger.Warn("failed to decrement KPI usage", "workspace_id", workspaceID, "error", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "KPI deleted.",
		})
	}
}

// ListObjectives returns all objectives in the target workspace.
// GET /api/v1/workspaces/:workspaceID/objectives
func (h *KPIHandlers) ListObjectives() gin.HandlerFunc {
	return func(c *gin.Context) {
		objectives, err := h.kpis.ListObjectives(c.Request.Context(), middleware.WorkspaceID(c))
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to list objectives", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"objectives": objectives,
		})
	}
}

// CreateObjective creates an objective. Objectives are not quota-gated.
// POST /api/v1/workspaces/:workspaceID/objectives
func (h *KPIHandlers) CreateObjective() gin.HandlerFunc {
	return func(c *gin.Context) {
		obj := &models.Objective{
			WorkspaceID: middleware.WorkspaceID(c),
			Title:       middleware.BodyString(c, "title"),
			Description: middleware.BodyString(c, "description"),
			CreatedBy:   middleware.UserID(c),
		}

		if err := h.kpis.CreateObjective(c.Request.Context(), obj); err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to create objective", err))
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"objective": obj,
		})
	}
}

// DeleteObjective deletes an objective, detaching its KPIs.
// DELETE /api/v1/workspaces/:workspaceID/objectives/:id
func (h *KPIHandlers) DeleteObjective() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := validation.ValidateID(id); err != nil {
			respondError(c, apierr.New(apierr.KindValidationError, "Invalid objective id."))
			return
		}

		deleted, err := h.kpis.DeleteObjective(c.Request.Context(), middleware.WorkspaceID(c), id)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to delete objective", err))
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "Objective not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Objective deleted.",
		})
	}
}
