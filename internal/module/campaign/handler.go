package campaign

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/postnow/server/internal/utils/errors"
)

// Handler exposes campaign runs as admin endpoints. There is no internal
// scheduler; an external cron hits these.
type Handler struct {
	service ServiceInterface
}

// NewHandler creates a new campaign handler.
func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the campaign routes on the admin group.
func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	campaigns := admin.Group("/campaigns")
	{
		campaigns.POST("/weekly-digest/run", h.runner(func(c *gin.Context) (*Summary, error) {
			return h.service.RunWeeklyDigest(c.Request.Context())
		}))
		campaigns.POST("/onboarding/run", h.runner(func(c *gin.Context) (*Summary, error) {
			return h.service.RunOnboarding(c.Request.Context())
		}))
		campaigns.POST("/reactivation/run", h.runner(func(c *gin.Context) (*Summary, error) {
			return h.service.RunReactivation(c.Request.Context())
		}))
	}
}

func (h *Handler) runner(run func(*gin.Context) (*Summary, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := run(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, apperrors.Internal("campaign run failed", err).ToResponse())
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary})
	}
}
