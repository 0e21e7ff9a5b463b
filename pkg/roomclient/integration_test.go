package roomclient

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listening-room-system/internal/auth"
	"github.com/listening-room-system/internal/playback"
	"github.com/listening-room-system/internal/presence"
	"github.com/listening-room-system/internal/queue"
	"github.com/listening-room-system/internal/room"
	"github.com/listening-room-system/internal/vote"
	"github.com/listening-room-system/internal/ws"
	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/database"
	"github.com/listening-room-system/pkg/events"
	"github.com/listening-room-system/pkg/jwt"
	"github.com/listening-room-system/pkg/models"
)

const testSecret = "roomclient-test-secret"

type stack struct {
	url   string
	store *database.MemoryStore
	hub   *ws.Hub
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := database.NewMemoryStore()
	bus := events.NewLocalBus()
	tracker := presence.NewLocalTracker(time.Minute)
	hub := ws.NewHub(tracker)
	bus.Subscribe(hub.Dispatch)

	rooms := room.NewService(store, nil, bus, 50)
	playbacks := playback.NewService(store, bus, 5*time.Second)

	r := gin.New()
	api := r.Group("/api/v1")
	auth.NewHandler(store, nil, testSecret).RegisterRoutes(api)
	protected := api.Group("", auth.AuthMiddleware(testSecret, nil))
	room.NewHandler(rooms).RegisterRoutes(protected)
	queue.NewHandler(queue.NewService(store, bus), playbacks).RegisterRoutes(protected)
	playback.NewHandler(playbacks).RegisterRoutes(protected)
	vote.NewHandler(vote.NewService(store, bus, tracker)).RegisterRoutes(protected)
	presence.NewHandler(tracker).RegisterRoutes(protected)
	ws.NewHandler(hub, rooms, nil).RegisterRoutes(protected)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &stack{url: srv.URL + "/api/v1", store: store, hub: hub}
}

type user struct {
	id     uuid.UUID
	client *Client
}

func (s *stack) user(t *testing.T, name string) user {
	t.Helper()
	id := uuid.New()
	token, err := jwt.GenerateToken(id.String(), name, testSecret, time.Hour)
	require.NoError(t, err)
	c := New(s.url, token, nil)
	me, err := c.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, id, me.ID)
	return user{id: id, client: c}
}

func yt(id string) models.TrackInfo {
	return models.TrackInfo{Source: models.SourceYouTube, VideoID: id, TrackURL: "https://www.youtube.com/watch?v=" + id, Title: id}
}

func TestCrowdSkipRaceThroughTheAPI(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)
	dj := st.user(t, "dj")

	created, err := dj.client.CreateRoom(ctx, "Race Room", nil)
	require.NoError(t, err)
	roomID := created.ID

	claim, err := dj.client.ClaimSpot(ctx, roomID)
	require.NoError(t, err)
	assert.True(t, claim.Activated)
	_, err = dj.client.UpdateSongs(ctx, roomID, []models.TrackInfo{yt("bbbbbbbbbbb")})
	require.NoError(t, err)
	_, err = dj.client.Play(ctx, roomID, yt("aaaaaaaaaaa"))
	require.NoError(t, err)

	var sessions []*Session
	for i := 0; i < 4; i++ {
		u := st.user(t, fmt.Sprintf("listener-%d", i))
		require.NoError(t, u.client.Heartbeat(ctx, roomID))
		if i < 2 {
			counts, err := u.client.Vote(ctx, roomID, models.VoteLame)
			require.NoError(t, err)
			assert.Equal(t, i+1, counts.Lame)
		}
		sessions = append(sessions, NewSession(u.client, roomID, u.id))
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			assert.NoError(t, s.Refresh(ctx))
		}(s)
	}
	wg.Wait()

	snap, err := dj.client.Snapshot(ctx, roomID)
	require.NoError(t, err)
	require.NotNil(t, snap.Room.CurrentTrack())
	assert.Equal(t, "bbbbbbbbbbb", snap.Room.CurrentTrack().VideoID)
	assert.Equal(t, models.StatePlaying, snap.State)
	require.Len(t, snap.Queue, 1)
	assert.Empty(t, snap.Queue[0].Songs)

	history, err := st.store.ListHistory(ctx, roomID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2, "exactly one crowd skip took effect")

	t.Run("votes reset with the new track", func(t *testing.T) {
		counts, err := dj.client.Tally(ctx, roomID)
		require.NoError(t, err)
		assert.Zero(t, counts.Total)
		assert.Equal(t, 4, counts.Listeners)
	})

	t.Run("track ended fires once", func(t *testing.T) {
		djSession := NewSession(dj.client, roomID, dj.id)
		require.NoError(t, djSession.Refresh(ctx))

		url := yt("bbbbbbbbbbb").TrackURL
		skipped, err := djSession.TrackEnded(ctx, url)
		require.NoError(t, err)
		assert.True(t, skipped)
		skipped, err = djSession.TrackEnded(ctx, url)
		require.NoError(t, err)
		assert.False(t, skipped)

		snap, err := dj.client.Snapshot(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, models.StatePicking, snap.State)
		assert.True(t, snap.Room.IsDJ(dj.id))
	})

	t.Run("typed errors", func(t *testing.T) {
		_, err := dj.client.ClaimSpot(ctx, roomID)
		assert.ErrorIs(t, err, apperr.ErrAlreadyQueued)

		_, err = sessions[0].Play(ctx, yt("ccccccccccc"))
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		_, err = sessions[0].Skip(ctx)
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		_, err = dj.client.Snapshot(ctx, uuid.New())
		assert.ErrorIs(t, err, apperr.ErrRoomNotFound)
	})
}

func TestSessionRunFollowsTheChangeFeed(t *testing.T) {
	st := newStack(t)
	owner := st.user(t, "owner")
	listener := st.user(t, "listener")

	created, err := owner.client.CreateRoom(context.Background(), "Feed Room", nil)
	require.NoError(t, err)

	s := NewSession(listener.client, created.ID, listener.id)
	updates := make(chan State, 16)
	s.OnChange = func(state State) { updates <- state }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case first := <-updates:
		assert.Equal(t, models.StateIdle, first.Snapshot.State)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial refresh")
	}

	require.Eventually(t, func() bool { return st.hub.ClientCount(created.ID) == 1 }, time.Second, 10*time.Millisecond)
	_, err = owner.client.ClaimSpot(context.Background(), created.ID)
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-updates:
			if got.Snapshot.State == models.StatePicking {
				assert.True(t, got.Snapshot.Room.IsDJ(owner.id))
				cancel()
				select {
				case err := <-done:
					assert.ErrorIs(t, err, context.Canceled)
				case <-time.After(2 * time.Second):
					t.Fatal("Run did not stop")
				}
				return
			}
		case <-deadline:
			cancel()
			t.Fatal("session never saw the claim")
		}
	}
}
