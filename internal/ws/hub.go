package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/listening-room-system/pkg/events"
)

// Presence is the part of the presence tracker the hub drives.
type Presence interface {
	Touch(ctx context.Context, roomID, userID uuid.UUID) error
	Leave(ctx context.Context, roomID, userID uuid.UUID) error
}

// Hub fans committed changes out to the websocket clients of each room.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[uuid.UUID]map[*client]struct{}
	presence Presence
}

func NewHub(presence Presence) *Hub {
	return &Hub{
		rooms:    make(map[uuid.UUID]map[*client]struct{}),
		presence: presence,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if h.rooms[c.roomID] == nil {
		h.rooms[c.roomID] = make(map[*client]struct{})
	}
	h.rooms[c.roomID][c] = struct{}{}
	h.mu.Unlock()

	h.touch(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	room, ok := h.rooms[c.roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	close(c.send)
	lastForUser := true
	for other := range room {
		if other.userID == c.userID {
			lastForUser = false
			break
		}
	}
	if len(room) == 0 {
		delete(h.rooms, c.roomID)
	}
	h.mu.Unlock()

	if lastForUser && h.presence != nil {
		if err := h.presence.Leave(context.Background(), c.roomID, c.userID); err != nil {
			log.Printf("Warning: failed to clear presence for %s: %v", c.userID, err)
		}
	}
}

func (h *Hub) touch(c *client) {
	if h.presence == nil {
		return
	}
	if err := h.presence.Touch(context.Background(), c.roomID, c.userID); err != nil {
		log.Printf("Warning: failed to record presence for %s: %v", c.userID, err)
	}
}

// Dispatch sends change to every client in its room. Clients whose buffer
// is full are dropped; they re-read state when they reconnect.
func (h *Hub) Dispatch(change events.Change) {
	roomID, err := uuid.Parse(change.RoomID)
	if err != nil {
		return
	}
	msg, err := json.Marshal(change)
	if err != nil {
		log.Printf("Failed to marshal change: %v", err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.rooms[roomID] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("Warning: dropping slow websocket client %s in room %s", c.userID, roomID)
		h.unregister(c)
	}
}

// ClientCount is the number of open connections in a room.
func (h *Hub) ClientCount(roomID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
