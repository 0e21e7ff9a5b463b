package room

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/listening-room-system/internal/auth"
	"github.com/listening-room-system/internal/middleware"
	"github.com/listening-room-system/pkg/apperr"
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
		rooms.POST("", h.createRoom)
		rooms.GET("/slug/:slug", h.getRoomBySlug)
		rooms.GET("/:id", h.getRoom)
		rooms.PATCH("/:id", h.updateSettings)
		rooms.DELETE("/:id", h.deleteRoom)
		rooms.PUT("/:id/owner", h.transferOwnership)
		rooms.GET("/:id/snapshot", h.snapshot)
		rooms.GET("/:id/history", h.history)
	}
}

func roomParam(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed room id", apperr.ErrInvalidInput)
	}
	return id, nil
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		middleware.AbortWithError(c, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return false
	}
	return true
}

func (h *Handler) createRoom(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	var req CreateInput
	if !bindJSON(c, &req) {
		return
	}

	room, err := h.service.CreateRoom(c.Request.Context(), userID, req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *Handler) getRoom(c *gin.Context) {
	roomID, err := roomParam(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	room, err := h.service.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) getRoomBySlug(c *gin.Context) {
	room, err := h.service.GetRoomBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) updateSettings(c *gin.Context) {
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
	var req SettingsInput
	if !bindJSON(c, &req) {
		return
	}

	room, err := h.service.UpdateSettings(c.Request.Context(), roomID, userID, req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

type TransferRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (h *Handler) transferOwnership(c *gin.Context) {
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
	var req TransferRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		middleware.AbortWithError(c, fmt.Errorf("%w: user_id is required", apperr.ErrInvalidInput))
		return
	}

	room, err := h.service.TransferOwnership(c.Request.Context(), roomID, userID, req.UserID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) deleteRoom(c *gin.Context) {
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
	if err := h.service.DeleteRoom(c.Request.Context(), roomID, userID); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) snapshot(c *gin.Context) {
	roomID, err := roomParam(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	snap, err := h.service.Snapshot(c.Request.Context(), roomID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) history(c *gin.Context) {
	roomID, err := roomParam(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			middleware.AbortWithError(c, fmt.Errorf("%w: limit must be a number", apperr.ErrInvalidInput))
			return
		}
	}
	entries, err := h.service.History(c.Request.Context(), roomID, limit)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}
