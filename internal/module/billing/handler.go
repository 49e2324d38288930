package billing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/postnow/server/internal/utils/errors"
	"github.com/postnow/server/internal/utils/middleware"
)

// Handler handles HTTP requests for plans and subscriptions.
type Handler struct {
	service ServiceInterface
}

// NewHandler creates a new billing handler.
func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the billing routes. Plan listing is public; the
// subscription endpoints require auth.
func (h *Handler) RegisterRoutes(public, authed *gin.RouterGroup) {
	public.GET("/plans", h.ListPlans)

	sub := authed.Group("/subscription")
	{
		sub.GET("", h.GetSubscription)
		sub.POST("/cancel", h.CancelSubscription)
	}
}

// ListPlans returns the active plan catalog.
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.service.ListPlans(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to list plans", err).ToResponse())
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// GetSubscription returns the user's current subscription, if any.
func (h *Handler) GetSubscription(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
		return
	}

	sub, err := h.service.CurrentSubscription(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to get subscription", err).ToResponse())
		return
	}
	if sub == nil {
		c.JSON(http.StatusOK, gin.H{"subscription": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// CancelSubscription cancels the user's active subscription.
func (h *Handler) CancelSubscription(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
		return
	}

	sub, err := h.service.CancelSubscription(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, apperrors.NotFound("no active subscription").ToResponse())
			return
		}
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to cancel subscription", err).ToResponse())
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}
