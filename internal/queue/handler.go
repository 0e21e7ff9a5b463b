package queue

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/listening-room-system/internal/auth"
	"github.com/listening-room-system/internal/middleware"
	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/models"
)

// Advancer moves the decks to the next seated DJ once departedDJ has left.
type Advancer interface {
	Advance(ctx context.Context, roomID, departedDJ uuid.UUID) (*models.Room, error)
}

type Handler struct {
	service  *Service
	advancer Advancer
}

func NewHandler(service *Service, advancer Advancer) *Handler {
	return &Handler{service: service, advancer: advancer}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rooms := r.Group("/rooms")
	{
		rooms.GET("/:id/queue", h.getQueue)
		rooms.POST("/:id/queue", h.claimSpot)
		rooms.DELETE("/:id/queue", h.leaveSpot)
		rooms.PUT("/:id/queue/songs", h.updateSongs)
		rooms.DELETE("/:id/queue/:userId", h.removeDJ)
	}
}

func parseID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed %s", apperr.ErrInvalidInput, name)
	}
	return id, nil
}

func (h *Handler) getQueue(c *gin.Context) {
	roomID, err := parseID(c, "id")
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	entries, err := h.service.GetQueue(c.Request.Context(), roomID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"queue": entries})
}

func (h *Handler) claimSpot(c *gin.Context) {
	roomID, err := parseID(c, "id")
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	userID, err := auth.UserID(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	result, err := h.service.ClaimSpot(c.Request.Context(), roomID, userID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) leaveSpot(c *gin.Context) {
	roomID, err := parseID(c, "id")
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	userID, err := auth.UserID(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	result, err := h.service.LeaveSpot(c.Request.Context(), roomID, userID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	h.afterRemoval(c, roomID, userID, result)
}

func (h *Handler) removeDJ(c *gin.Context) {
	roomID, err := parseID(c, "id")
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	targetID, err := parseID(c, "userId")
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	actorID, err := auth.UserID(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	result, err := h.service.RemoveDJ(c.Request.Context(), roomID, actorID, targetID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	h.afterRemoval(c, roomID, targetID, result)
}

// afterRemoval advances the rotation when the departed user held the decks.
// The roster row is already gone, so an advance failure is logged and the
// room stays with a dangling DJ until the next skip or leave.
func (h *Handler) afterRemoval(c *gin.Context, roomID, departed uuid.UUID, result *LeaveResult) {
	resp := gin.H{"removed": result.Removed, "was_active_dj": result.WasActiveDJ}
	if result.WasActiveDJ && h.advancer != nil {
		room, err := h.advancer.Advance(c.Request.Context(), roomID, departed)
		if err != nil {
			log.Printf("Warning: failed to advance room %s after dj %s left: %v", roomID, departed, err)
		} else {
			resp["room"] = room
		}
	}
	c.JSON(http.StatusOK, resp)
}

type UpdateSongsRequest struct {
	Songs models.TrackList `json:"songs"`
}

func (h *Handler) updateSongs(c *gin.Context) {
	roomID, err := parseID(c, "id")
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	userID, err := auth.UserID(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	var req UpdateSongsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}

	entry, err := h.service.UpdateSongs(c.Request.Context(), roomID, userID, req.Songs)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}
