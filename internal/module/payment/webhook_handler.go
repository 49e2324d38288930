package payment

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler handles inbound Stripe webhook deliveries.
type WebhookHandler struct {
	service ServiceInterface
	logger  *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(service ServiceInterface, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: logger}
}

// RegisterRoutes registers the webhook routes. These are unauthenticated;
// the signature check is the authentication.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook verifies and dispatches a Stripe event. The response
// is an error status only for malformed or unauthenticated payloads; once an
// event is dispatched the sender gets a success so it does not retry a
// handled-but-rejected event forever.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	event, err := h.service.VerifyWebhook(payload, signature)
	if err != nil {
		h.logger.Warn("rejected webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	status := h.service.HandleEvent(c.Request.Context(), event, payload)
	c.JSON(http.StatusOK, gin.H{"status": string(status)})
}
