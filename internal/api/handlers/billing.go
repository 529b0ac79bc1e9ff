// billing.go implements the billing-provider webhook and the subscription
// read endpoint. The webhook authenticates by HMAC signature, not by session:
// the billing provider is a machine caller outside the user pipeline.
package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/db/repositories"
	"github.com/kpiflow/kpiflow/internal/middleware"
	"github.com/kpiflow/kpiflow/internal/quota"
)

// HeaderBillingSignature carries the hex HMAC-SHA256 of the raw webhook body.
const HeaderBillingSignature = "x-billing-signature"

// BillingHandlers handles the subscription webhook and billing reads.
type BillingHandlers struct {
	billing    *repositories.BillingRepository
	workspaces *repositories.WorkspaceRepository
	secret     string
	logger     *slog.Logger
}

// NewBillingHandlers creates a BillingHandlers instance. secret signs the
// webhook; an empty secret disables the webhook endpoint.
func NewBillingHandlers(
	billing *repositories.BillingRepository,
	workspaces *repositories.WorkspaceRepository,
	secret string,
	logger *slog.Logger,
) *BillingHandlers {
	return &BillingHandlers{
		billing:    billing,
		workspaces: workspaces,
		secret:     secret,
		logger:     logger,
	}
}

// subscriptionEvent is the webhook payload from the billing provider.
type subscriptionEvent struct {
	UserID   string `json:"user_id"`
	PlanType string `json:"plan_type"`
	Status   string `json:"status"`
}

// Webhook ingests a subscription change from the billing provider.
// POST /webhooks/billing
func (h *BillingHandlers) Webhook() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.secret == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			respondError(c, apierr.New(apierr.KindValidationError, "Unable to read request body."))
			return
		}

		if !h.verifySignature(body, c.GetHeader(HeaderBillingSignature)) {
			h.logger.Warn("billing webhook signature mismatch", "ip", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}

		var event subscriptionEvent
		if err := json.Unmarshal(body, &event); err != nil {
			respondError(c, apierr.New(apierr.KindValidationError, "Request body must be a JSON object."))
			return
		}
		if event.UserID == "" || event.PlanType == "" {
			respondError(c, apierr.New(apierr.KindValidationError, "user_id and plan_type are required."))
			return
		}
		if event.Status == "" {
			event.Status = "active"
		}

		// Unknown plan names are stored as received and degrade to FREE when
		// the quota enforcer reads them, so a provider-side plan rollout
		// never bounces webhooks.
		if !quota.ValidPlan(event.PlanType) {
			h.logger.Warn("billing webhook carries unknown plan", "plan", event.PlanType, "user_id", event.UserID)
		}

		if err := h.billing.UpsertSubscription(c.Request.Context(), event.UserID, event.PlanType, event.Status); err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to store subscription", err))
			return
		}

		h.logger.Info("subscription updated",
			"user_id", event.UserID,
			"plan", event.PlanType,
			"status", event.Status)

		c.JSON(http.StatusOK, gin.H{
			"message": "Subscription updated.",
		})
	}
}

func (h *BillingHandlers) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GetSubscription returns the plan backing the target workspace: the owner's
// subscription, or the FREE defaults when none exists.
// GET /api/v1/workspaces/:workspaceID/billing/subscription
func (h *BillingHandlers) GetSubscription() gin.HandlerFunc {
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

		sub, err := h.billing.GetSubscription(c.Request.Context(), ws.OwnerID)
		if err != nil {
			respondError(c, apierr.Wrap(apierr.KindNetworkError, "failed to load subscription", err))
			return
		}

		plan := quota.PlanFree
		status := "none"
		if sub != nil {
			plan = quota.Plan(sub.PlanType)
			if !quota.ValidPlan(sub.PlanType) {
				plan = quota.PlanFree
			}
			status = sub.Status
		}
		limits := quota.LimitsFor(plan)

		c.JSON(http.StatusOK, gin.H{
			"plan":   plan,
			"status": status,
			"limits": gin.H{
				"workspaces":         limits.Workspaces,
				"kpis_per_workspace": limits.KPIsPerWorkspace,
				"integrations":       limits.Integrations,
				"ai_features":        limits.AIFeatures,
			},
		})
	}
}
