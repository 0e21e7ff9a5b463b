package resolver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/listening-room-system/internal/middleware"
	"github.com/listening-room-system/pkg/models"
)

type Resolver interface {
	Resolve(ctx context.Context, input string) (*models.TrackInfo, error)
}

type Handler struct {
	resolver Resolver
}

func NewHandler(resolver Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/resolve", h.resolve)
}

func (h *Handler) resolve(c *gin.Context) {
	track, err := h.resolver.Resolve(c.Request.Context(), c.Query("url"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"track": track})
}
