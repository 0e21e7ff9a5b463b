package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/events"
	"github.com/listening-room-system/pkg/models"
)

type countingPresence struct {
	mu      sync.Mutex
	touches int
	leaves  int
}

func (p *countingPresence) Touch(context.Context, uuid.UUID, uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touches++
	return nil
}

func (p *countingPresence) Leave(context.Context, uuid.UUID, uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leaves++
	return nil
}

func (p *countingPresence) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.touches, p.leaves
}

type knownRooms map[uuid.UUID]bool

func (k knownRooms) GetRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	if !k[id] {
		return nil, apperr.ErrRoomNotFound
	}
	return &models.Room{ID: id}, nil
}

func newTestServer(t *testing.T, hub *Hub, rooms knownRooms) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", c.Query("uid"))
		c.Next()
	})
	NewHandler(hub, rooms, nil).RegisterRoutes(r.Group("/api/v1"))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, roomID, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/" + roomID.String() + "?uid=" + userID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDispatchReachesOnlyTheRoom(t *testing.T) {
	presence := &countingPresence{}
	hub := NewHub(presence)
	roomA, roomB := uuid.New(), uuid.New()
	srv := newTestServer(t, hub, knownRooms{roomA: true, roomB: true})

	a := dial(t, srv, roomA, uuid.New())
	b := dial(t, srv, roomB, uuid.New())
	require.Eventually(t, func() bool {
		return hub.ClientCount(roomA) == 1 && hub.ClientCount(roomB) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Dispatch(events.NewChange(events.OpUpdate, events.TableRooms, roomA, map[string]string{"name": "a"}))

	a.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := a.ReadMessage()
	require.NoError(t, err)
	var got events.Change
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, events.TableRooms, got.Table)
	assert.Equal(t, roomA.String(), got.RoomID)

	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = b.ReadMessage()
	assert.Error(t, err)

	touches, _ := presence.counts()
	assert.Equal(t, 2, touches)
}

func TestHeartbeatAndDisconnectDrivePresence(t *testing.T) {
	presence := &countingPresence{}
	hub := NewHub(presence)
	room := uuid.New()
	srv := newTestServer(t, hub, knownRooms{room: true})

	conn := dial(t, srv, room, uuid.New())
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "heartbeat"}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.Eventually(t, func() bool {
		touches, _ := presence.counts()
		return touches == 2
	}, time.Second, 10*time.Millisecond)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	require.Eventually(t, func() bool {
		_, leaves := presence.counts()
		return leaves == 1 && hub.ClientCount(room) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHandshakeRejections(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub, knownRooms{})
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/"

	_, resp, err := websocket.DefaultDialer.Dial(base+uuid.NewString()+"?uid="+uuid.NewString(), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"lobby?uid="+uuid.NewString(), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+uuid.NewString(), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSlowClientIsDropped(t *testing.T) {
	presence := &countingPresence{}
	hub := NewHub(presence)
	room := uuid.New()
	c := &client{hub: hub, roomID: room, userID: uuid.New(), send: make(chan []byte, 1)}
	hub.register(c)

	change := events.NewChange(events.OpInsert, events.TableVotes, room, nil)
	hub.Dispatch(change)
	hub.Dispatch(change)

	assert.Zero(t, hub.ClientCount(room))
	_, ok := <-c.send
	assert.True(t, ok, "buffered message is still readable")
	_, ok = <-c.send
	assert.False(t, ok)
	_, leaves := presence.counts()
	assert.Equal(t, 1, leaves)
}

func TestCheckOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.True(t, checkOrigin(nil)(req))
	assert.False(t, checkOrigin([]string{"https://room.example"})(req))
	req.Header.Set("Origin", "https://room.example")
	assert.True(t, checkOrigin([]string{"https://room.example"})(req))
}
