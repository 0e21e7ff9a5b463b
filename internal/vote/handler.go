package vote

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/listening-room-system/internal/auth"
	"github.com/listening-room-system/internal/middleware"
	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rooms := r.Group("/rooms")
	{
		rooms.GET("/:id/votes", h.tally)
		rooms.POST("/:id/votes", h.castVote)
	}
}

type VoteRequest struct {
	VoteType models.VoteType `json:"vote_type" binding:"required"`
}

func (h *Handler) castVote(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, fmt.Errorf("%w: malformed room id", apperr.ErrInvalidInput))
		return
	}
	userID, err := auth.UserID(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}

	counts, err := h.service.CastVote(c.Request.Context(), roomID, userID, req.VoteType)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, counts)
}

func (h *Handler) tally(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, fmt.Errorf("%w: malformed room id", apperr.ErrInvalidInput))
		return
	}
	userID, err := auth.UserID(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	counts, err := h.service.Tally(c.Request.Context(), roomID, userID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, counts)
}
