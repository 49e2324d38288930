package idea

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/postnow/server/internal/module/credits"
	apperrors "github.com/postnow/server/internal/utils/errors"
	"github.com/postnow/server/internal/utils/middleware"
)

// Handler handles HTTP requests for content generation.
type Handler struct {
	service ServiceInterface
}

// NewHandler creates a new idea handler.
func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the content routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	ideas := r.Group("/ideas")
	{
		ideas.POST("/generate", h.Generate)
		ideas.GET("", h.List)
		ideas.GET("/:id", h.Get)
		ideas.PATCH("/:id/saved", h.SetSaved)
		ideas.PATCH("/:id/image", h.SetImage)
		ideas.DELETE("/:id", h.Delete)
	}
}

type generateRequest struct {
	Kind     Kind   `json:"kind"`
	Topic    string `json:"topic" binding:"required"`
	Platform string `json:"platform"`
}

// Generate produces a new piece of content, charging the flat price.
func (h *Handler) Generate(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("topic is required").ToResponse())
		return
	}
	if req.Kind == "" {
		req.Kind = KindIdea
	}

	idea, err := h.service.Generate(c.Request.Context(), userID, req.Kind, req.Topic, req.Platform)
	if err != nil {
		switch {
		case errors.Is(err, credits.ErrInsufficientCredits):
			c.JSON(http.StatusPaymentRequired, apperrors.InsufficientCredits("").ToResponse())
		case errors.Is(err, credits.ErrNoActiveSubscription):
			c.JSON(http.StatusForbidden, apperrors.Forbidden("an active subscription is required").ToResponse())
		case errors.Is(err, ErrProfileIncomplete):
			c.JSON(http.StatusUnprocessableEntity, apperrors.ValidationError("complete your brand profile first").ToResponse())
		case errors.Is(err, ErrEmptyTopic):
			c.JSON(http.StatusBadRequest, apperrors.BadRequest("topic is required").ToResponse())
		case errors.Is(err, ErrGenerationFailed):
			c.JSON(http.StatusBadGateway, apperrors.ExternalService("content generation failed", err).ToResponse())
		default:
			c.JSON(http.StatusInternalServerError, apperrors.Internal("generation failed", err).ToResponse())
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"idea": idea})
}

// List returns a page of the user's generated content.
func (h *Handler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	ideas, total, err := h.service.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to list ideas", err).ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{"ideas": ideas, "total": total})
}

// Get returns one idea.
func (h *Handler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ideaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("invalid idea id").ToResponse())
		return
	}

	idea, err := h.service.GetByID(c.Request.Context(), userID, ideaID)
	if err != nil {
		if errors.Is(err, ErrIdeaNotFound) {
			c.JSON(http.StatusNotFound, apperrors.NotFound("idea").ToResponse())
			return
		}
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to get idea", err).ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{"idea": idea})
}

type setSavedRequest struct {
	Saved bool `json:"saved"`
}

// SetSaved toggles the saved flag on an idea.
func (h *Handler) SetSaved(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ideaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("invalid idea id").ToResponse())
		return
	}

	var req setSavedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("malformed request").ToResponse())
		return
	}

	if err := h.service.SetSaved(c.Request.Context(), userID, ideaID, req.Saved); err != nil {
		if errors.Is(err, ErrIdeaNotFound) {
			c.JSON(http.StatusNotFound, apperrors.NotFound("idea").ToResponse())
			return
		}
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to update idea", err).ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

type setImageRequest struct {
	ImageURL string `json:"image_url" binding:"required,url"`
}

// SetImage attaches an image URL to an idea.
func (h *Handler) SetImage(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ideaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("invalid idea id").ToResponse())
		return
	}

	var req setImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("a valid image_url is required").ToResponse())
		return
	}

	if err := h.service.SetImageURL(c.Request.Context(), userID, ideaID, req.ImageURL); err != nil {
		if errors.Is(err, ErrIdeaNotFound) {
			c.JSON(http.StatusNotFound, apperrors.NotFound("idea").ToResponse())
			return
		}
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to update idea", err).ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// Delete removes an idea from the library.
func (h *Handler) Delete(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ideaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("invalid idea id").ToResponse())
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, ideaID); err != nil {
		if errors.Is(err, ErrIdeaNotFound) {
			c.JSON(http.StatusNotFound, apperrors.NotFound("idea").ToResponse())
			return
		}
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to delete idea", err).ToResponse())
		return
	}

	c.JSON(http.StatusNoContent, nil)
}
