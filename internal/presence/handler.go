package presence

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/listening-room-system/internal/auth"
	"github.com/listening-room-system/internal/middleware"
	"github.com/listening-room-system/pkg/apperr"
)

type Handler struct {
	tracker Tracker
}

func NewHandler(tracker Tracker) *Handler {
	return &Handler{tracker: tracker}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rooms := r.Group("/rooms")
	{
		rooms.POST("/:id/heartbeat", h.heartbeat)
		rooms.GET("/:id/presence", h.members)
		rooms.DELETE("/:id/presence", h.leave)
	}
}

func roomParam(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed room id", apperr.ErrInvalidInput)
	}
	return id, nil
}

func (h *Handler) heartbeat(c *gin.Context) {
	roomID, err := roomParam(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	userID, err := auth.UserID(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	if err := h.tracker.Touch(c.Request.Context(), roomID, userID); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) leave(c *gin.Context) {
	roomID, err := roomParam(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	userID, err := auth.UserID(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	if err := h.tracker.Leave(c.Request.Context(), roomID, userID); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) members(c *gin.Context) {
	roomID, err := roomParam(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	members, err := h.tracker.Members(c.Request.Context(), roomID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(members), "members": members})
}
