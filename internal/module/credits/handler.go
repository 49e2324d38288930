package credits

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/postnow/server/internal/utils/errors"
	"github.com/postnow/server/internal/utils/middleware"
)

// Handler handles HTTP requests for the credit ledger.
type Handler struct {
	service ServiceInterface
	prices  *PriceTable
}

// NewHandler creates a new credits handler.
func NewHandler(service ServiceInterface, prices *PriceTable) *Handler {
	return &Handler{service: service, prices: prices}
}

// RegisterRoutes registers the credits routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	credits := r.Group("/credits")
	{
		credits.GET("/balance", h.GetBalance)
		credits.GET("/transactions", h.ListTransactions)
		credits.GET("/prices", h.ListPrices)
	}
}

// GetBalance returns the user's credit balance and cycle state.
func (h *Handler) GetBalance(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
		return
	}

	uc, err := h.service.GetCredits(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to get balance", err).ToResponse())
		return
	}

	if uc == nil {
		c.JSON(http.StatusOK, gin.H{
			"balance":                   "0",
			"monthly_credits_allocated": "0",
			"monthly_credits_used":      "0",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":                   uc.Balance.String(),
		"monthly_credits_allocated": uc.MonthlyCreditsAllocated.String(),
		"monthly_credits_used":      uc.MonthlyCreditsUsed.String(),
		"last_credit_reset":         uc.LastCreditReset,
	})
}

// ListTransactions returns a page of the user's ledger history.
func (h *Handler) ListTransactions(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, total, err := h.service.ListTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to list transactions", err).ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"total":        total,
	})
}

// ListPrices returns the fixed per-operation prices.
func (h *Handler) ListPrices(c *gin.Context) {
	prices := gin.H{}
	for _, op := range h.prices.Operations() {
		price, err := h.prices.Price(op)
		if err != nil {
			continue
		}
		prices[op] = price.String()
	}
	c.JSON(http.StatusOK, gin.H{"operation_prices": prices})
}

// StatusForError maps module errors to HTTP codes for callers embedding
// ledger failures in their own responses.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrNoActiveSubscription):
		return http.StatusForbidden
	case errors.Is(err, ErrUnknownOperation), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidTransactionType):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
