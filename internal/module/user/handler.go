package user

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/postnow/server/internal/utils/errors"
	"github.com/postnow/server/internal/utils/middleware"
)

// Handler handles HTTP requests for accounts.
type Handler struct {
	service ServiceInterface
}

// NewHandler creates a new user handler.
func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers auth routes on the public group and profile
// routes on the authed group.
func (h *Handler) RegisterRoutes(public, authed *gin.RouterGroup) {
	auth := public.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
	}

	profile := authed.Group("/profile")
	{
		profile.GET("", h.GetProfile)
		profile.PATCH("", h.UpdateProfile)
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

// Register creates a new account.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("email, password and name are required").ToResponse())
		return
	}

	result, err := h.service.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			c.JSON(http.StatusConflict, apperrors.Conflict("email already registered").ToResponse())
		case errors.Is(err, ErrWeakPassword):
			c.JSON(http.StatusUnprocessableEntity, apperrors.ValidationError(err.Error()).ToResponse())
		default:
			c.JSON(http.StatusInternalServerError, apperrors.Internal("registration failed", err).ToResponse())
		}
		return
	}

	c.JSON(http.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates an account.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("email and password are required").ToResponse())
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("invalid email or password").ToResponse())
			return
		}
		c.JSON(http.StatusInternalServerError, apperrors.Internal("login failed", err).ToResponse())
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetProfile returns the authenticated user's account and brand profile.
func (h *Handler) GetProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
		return
	}

	u, err := h.service.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, apperrors.NotFound("user").ToResponse())
			return
		}
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to get profile", err).ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": u})
}

// UpdateProfile applies a partial update to the brand profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
		return
	}

	var update ProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("malformed profile update").ToResponse())
		return
	}

	u, err := h.service.UpdateProfile(c.Request.Context(), userID, update)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, apperrors.NotFound("user").ToResponse())
			return
		}
		c.JSON(http.StatusInternalServerError, apperrors.Internal("failed to update profile", err).ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": u})
}
