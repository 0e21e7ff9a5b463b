package roomclient

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/models"
)

const (
	// AutoSkipDebounce is the minimum gap between two automatic skips from
	// one session.
	AutoSkipDebounce = 10 * time.Second
	heartbeatPeriod  = 20 * time.Second
)

// State is what a session last read from the server.
type State struct {
	Snapshot *models.Snapshot
	Counts   *models.VoteCounts
}

// Session follows one room for one user. It re-reads the snapshot and tally
// on every change notification, fires debounced crowd skips when the vote
// threshold is met, and turns a player's track-ended signal into at most one
// conditional skip per track.
type Session struct {
	client *Client
	roomID uuid.UUID
	userID uuid.UUID

	// OnChange, if set, is called after every successful refresh.
	OnChange func(State)

	mu           sync.Mutex
	state        State
	lastAutoSkip time.Time
	endedURL     string
	now          func() time.Time
}

func NewSession(client *Client, roomID, userID uuid.UUID) *Session {
	return &Session{
		client: client,
		roomID: roomID,
		userID: userID,
		now:    time.Now,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// reload reads snapshot and tally without acting on them.
func (s *Session) reload(ctx context.Context) (State, error) {
	snap, err := s.client.Snapshot(ctx, s.roomID)
	if err != nil {
		return State{}, err
	}
	counts, err := s.client.Tally(ctx, s.roomID)
	if err != nil {
		return State{}, err
	}
	st := State{Snapshot: snap, Counts: counts}

	s.mu.Lock()
	s.state = st
	if cur := snap.Room.CurrentTrack(); cur == nil || cur.TrackURL != s.endedURL {
		s.endedURL = ""
	}
	s.mu.Unlock()

	if s.OnChange != nil {
		s.OnChange(st)
	}
	return st, nil
}

// Refresh re-reads room state and runs the auto-skip check.
func (s *Session) Refresh(ctx context.Context) error {
	st, err := s.reload(ctx)
	if err != nil {
		return err
	}
	s.maybeAutoSkip(ctx, st)
	return nil
}

func (s *Session) maybeAutoSkip(ctx context.Context, st State) {
	if st.Snapshot == nil || st.Counts == nil {
		return
	}
	room := st.Snapshot.Room
	if !models.ShouldAutoSkip(room, *st.Counts, s.userID) {
		return
	}

	s.mu.Lock()
	now := s.now()
	if !s.lastAutoSkip.IsZero() && now.Sub(s.lastAutoSkip) < AutoSkipDebounce {
		s.mu.Unlock()
		return
	}
	s.lastAutoSkip = now
	s.mu.Unlock()

	s.conditionalSkip(ctx, room.CurrentTrack().TrackURL, "auto-skip")
}

// conditionalSkip skips trackURL if it is still playing. Losing the race to
// another session is expected and ignored.
func (s *Session) conditionalSkip(ctx context.Context, trackURL, reason string) (bool, error) {
	_, err := s.client.Skip(ctx, s.roomID, trackURL)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrCooldownActive), errors.Is(err, apperr.ErrNoActiveTrack):
		return false, nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		// The outcome is unknown; re-read rather than retry.
		if _, rerr := s.reload(ctx); rerr != nil {
			log.Printf("Warning: %s re-read failed for room %s: %v", reason, s.roomID, rerr)
		}
	}
	log.Printf("Warning: %s failed for room %s: %v", reason, s.roomID, err)
	return false, err
}

// TrackEnded is called by the active DJ's player when trackURL finishes.
// Repeated calls for the same track are ignored; it reports whether a skip
// took effect.
func (s *Session) TrackEnded(ctx context.Context, trackURL string) (bool, error) {
	if trackURL == "" {
		return false, nil
	}
	s.mu.Lock()
	if s.endedURL == trackURL {
		s.mu.Unlock()
		return false, nil
	}
	s.endedURL = trackURL
	s.mu.Unlock()

	return s.conditionalSkip(ctx, trackURL, "track-ended skip")
}

func (s *Session) Claim(ctx context.Context) (*ClaimResult, error) {
	return s.client.ClaimSpot(ctx, s.roomID)
}

func (s *Session) Leave(ctx context.Context) (*LeaveResult, error) {
	return s.client.LeaveSpot(ctx, s.roomID)
}

func (s *Session) SetSongs(ctx context.Context, songs []models.TrackInfo) (*models.DJQueueEntry, error) {
	return s.client.UpdateSongs(ctx, s.roomID, songs)
}

func (s *Session) Play(ctx context.Context, track models.TrackInfo) (*models.Room, error) {
	return s.client.Play(ctx, s.roomID, track)
}

// Skip is an explicit skip; unlike automatic ones its errors are returned.
func (s *Session) Skip(ctx context.Context) (*SkipResult, error) {
	return s.client.Skip(ctx, s.roomID, "")
}

func (s *Session) Vote(ctx context.Context, voteType models.VoteType) (*models.VoteCounts, error) {
	return s.client.Vote(ctx, s.roomID, voteType)
}

// Run subscribes to the room's change feed and refreshes on every
// notification until ctx is done or the connection drops.
func (s *Session) Run(ctx context.Context) error {
	wsURL, err := s.client.WebSocketURL(s.roomID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := s.Refresh(ctx); err != nil {
		log.Printf("Warning: initial refresh for room %s failed: %v", s.roomID, err)
	}

	notify := make(chan struct{}, 1)
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
			// Notifications coalesce; every refresh reads the full state.
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	}()

	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"type": "heartbeat"}); err != nil {
				return err
			}
		case <-notify:
			if err := s.Refresh(ctx); err != nil {
				log.Printf("Warning: refresh for room %s failed: %v", s.roomID, err)
			}
		}
	}
}
