package ws

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/listening-room-system/internal/auth"
	"github.com/listening-room-system/internal/middleware"
	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/models"
)

type RoomGetter interface {
	GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
}

type Handler struct {
	hub      *Hub
	rooms    RoomGetter
	upgrader websocket.Upgrader
}

// NewHandler accepts any origin when allowedOrigins is empty.
func NewHandler(hub *Hub, rooms RoomGetter, allowedOrigins []string) *Handler {
	return &Handler{
		hub:   hub,
		rooms: rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(allowed) == 0 || origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws/:roomId", h.HandleWebSocket)
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("roomId"))
	if err != nil {
		middleware.AbortWithError(c, fmt.Errorf("%w: malformed room id", apperr.ErrInvalidInput))
		return
	}
	userID, err := auth.UserID(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if _, err := h.rooms.GetRoom(c.Request.Context(), roomID); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	cl := &client{
		hub:    h.hub,
		conn:   conn,
		roomID: roomID,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}
	h.hub.register(cl)

	go cl.writePump()
	go cl.readPump()
}
