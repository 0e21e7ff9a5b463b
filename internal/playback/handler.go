package playback

import (
	"errors"
	"fmt"
	"io"
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
		rooms.POST("/:id/play", h.play)
		rooms.POST("/:id/skip", h.skip)
	}
}

func (h *Handler) caller(c *gin.Context) (roomID, userID uuid.UUID, err error) {
	roomID, err = uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: malformed room id", apperr.ErrInvalidInput)
	}
	userID, err = auth.UserID(c)
	return roomID, userID, err
}

type PlayRequest struct {
	Track models.TrackInfo `json:"track"`
}

func (h *Handler) play(c *gin.Context) {
	roomID, userID, err := h.caller(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}

	room, err := h.service.PlayTrack(c.Request.Context(), roomID, userID, req.Track)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

type SkipRequest struct {
	IfTrackURL string `json:"if_track_url"`
}

func (h *Handler) skip(c *gin.Context) {
	roomID, userID, err := h.caller(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	// The body is optional.
	var req SkipRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.AbortWithError(c, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}

	result, err := h.service.Skip(c.Request.Context(), roomID, userID, SkipOptions{IfTrackURL: req.IfTrackURL})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
