package payment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/postnow/server/internal/module/billing"
	apperrors "github.com/postnow/server/internal/utils/errors"
	"github.com/postnow/server/internal/utils/middleware"
)

// Handler handles checkout and payment administration requests.
type Handler struct {
	service ServiceInterface
}

// NewHandler creates a new payment handler.
func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the checkout routes on the authed group and the
// reconciliation listing on the admin group.
func (h *Handler) RegisterRoutes(authed, admin *gin.RouterGroup) {
	authed.POST("/checkout", h.CreateCheckout)
	authed.POST("/checkout/pack", h.CreatePackCheckout)
	authed.GET("/packs", h.ListPacks)
	admin.GET("/webhooks/unresolved", h.ListUnresolved)
}

type createCheckoutRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// CreateCheckout opens a provider checkout session for the requested plan.
func (h *Handler) CreateCheckout(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
		return
	}

	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("plan_id is required").ToResponse())
		return
	}

	session, err := h.service.CreateCheckout(c.Request.Context(), userID, middleware.GetEmail(c), req.PlanID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrPlanNotFound):
			c.JSON(http.StatusNotFound, apperrors.NotFound("plan").ToResponse())
		case errors.Is(err, billing.ErrPlanNotActive):
			c.JSON(http.StatusUnprocessableEntity, apperrors.ValidationError("plan is not available").ToResponse())
		default:
			c.JSON(apperrors.GetStatusCode(err), apperrors.Internal("failed to create checkout session", err).ToResponse())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	})
}

type packCheckoutRequest struct {
	PackID string `json:"pack_id" binding:"required"`
}

// CreatePackCheckout opens a one-time checkout session for a credit pack.
func (h *Handler) CreatePackCheckout(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
		return
	}

	var req packCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("pack_id is required").ToResponse())
		return
	}

	session, err := h.service.CreatePackCheckout(c.Request.Context(), userID, middleware.GetEmail(c), req.PackID)
	if err != nil {
		if errors.Is(err, ErrPackNotFound) {
			c.JSON(http.StatusNotFound, apperrors.NotFound("credit pack").ToResponse())
			return
		}
		c.JSON(apperrors.GetStatusCode(err), apperrors.Internal("failed to create checkout session", err).ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	})
}

// ListPacks returns the purchasable credit packs.
func (h *Handler) ListPacks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packs": CreditPacks()})
}

// ListUnresolved returns webhook events flagged for manual reconciliation.
func (h *Handler) ListUnresolved(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := h.service.ListUnresolved(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to list unresolved events", err).ToResponse())
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
