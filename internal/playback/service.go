package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/database"
	"github.com/listening-room-system/pkg/events"
	"github.com/listening-room-system/pkg/models"
)

type Action string

const (
	ActionNextSong     Action = "next_song"
	ActionAdvanceQueue Action = "advance_queue"
)

type SkipResult struct {
	Action Action       `json:"action"`
	Room   *models.Room `json:"room"`
}

type SkipOptions struct {
	// IfTrackURL makes the skip conditional on this URL still playing.
	IfTrackURL string
}

// Service is the only writer of a room's playback columns.
type Service struct {
	store    database.Store
	events   events.Publisher
	cooldown time.Duration
	now      func() time.Time
}

func NewService(store database.Store, publisher events.Publisher, crowdCooldown time.Duration) *Service {
	return &Service{
		store:    store,
		events:   publisher,
		cooldown: crowdCooldown,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// PlayTrack starts track for the active DJ and logs it to history.
func (s *Service) PlayTrack(ctx context.Context, roomID, userID uuid.UUID, track models.TrackInfo) (*models.Room, error) {
	if err := track.Validate(); err != nil {
		return nil, err
	}

	var (
		room  *models.Room
		entry *models.SongHistoryEntry
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		room, err = tx.LockRoom(ctx, roomID)
		if err != nil {
			return database.RoomError(err)
		}
		if !room.IsDJ(userID) {
			return fmt.Errorf("%w: only the active dj can start a track", apperr.ErrForbidden)
		}

		now := s.now()
		p := models.Playing(userID, room.ActiveDJSpot, track, now)
		if err := tx.SetPlayback(ctx, roomID, p); err != nil {
			return fmt.Errorf("failed to set playback: %w", err)
		}
		room.ApplyPlayback(p)

		entry = models.NewHistoryEntry(roomID, userID, track, now)
		if err := tx.AppendHistory(ctx, entry); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	events.PublishAll(ctx, s.events,
		events.NewChange(events.OpUpdate, events.TableRooms, roomID, room),
		events.NewChange(events.OpInsert, events.TableHistory, roomID, entry),
	)
	return room, nil
}

// Skip ends the current turn. Exactly one of any set of racing crowd skips
// wins the last_skipped_at claim; the rest get ErrCooldownActive.
//
// The DJ, the room owner and admins skip freely. Anyone else is a crowd
// skip and needs the lame share of votes on the playing track to have
// reached the room's threshold.
//
// When a track is playing, the DJ's next queued song replaces it. When the
// DJ is still picking, the queue is not consulted: the decks pass to the
// next seated DJ even if the current DJ has songs queued.
func (s *Service) Skip(ctx context.Context, roomID, userID uuid.UUID, opts SkipOptions) (*SkipResult, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, database.RoomError(err)
	}

	isDJ := room.IsDJ(userID)
	moderator, err := database.CanModerate(ctx, s.store, room, userID)
	if err != nil {
		return nil, err
	}
	crowd := !isDJ && !moderator

	if opts.IfTrackURL != "" && !playing(room, opts.IfTrackURL) {
		return nil, fmt.Errorf("%w: %s is no longer playing", apperr.ErrCooldownActive, opts.IfTrackURL)
	}

	var votedKey string
	if crowd {
		votedKey, err = s.authorizeCrowdSkip(ctx, room, userID)
		if err != nil {
			return nil, err
		}
		// Advisory only; the claim below is what arbitrates.
		if room.LastSkippedAt != nil && !room.LastSkippedAt.Before(s.now().Add(-s.cooldown)) {
			return nil, fmt.Errorf("%w: the room was skipped moments ago", apperr.ErrCooldownActive)
		}
	}

	var (
		result  SkipResult
		changes []events.Change
	)
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		now := s.now()
		var staleBefore *time.Time
		if crowd {
			sb := now.Add(-s.cooldown)
			staleBefore = &sb
		}

		claimed, err := tx.ClaimSkip(ctx, roomID, now, staleBefore)
		if err != nil {
			return fmt.Errorf("failed to claim skip: %w", err)
		}
		if !claimed {
			if _, err := tx.GetRoom(ctx, roomID); err != nil {
				return database.RoomError(err)
			}
			return fmt.Errorf("%w: the room was skipped moments ago", apperr.ErrCooldownActive)
		}

		// Re-read under the claim; everything below decides on fresh state.
		room, err := tx.LockRoom(ctx, roomID)
		if err != nil {
			return database.RoomError(err)
		}
		room.LastSkippedAt = &now

		switch {
		case crowd && room.CurrentTrackKey() != votedKey:
			return fmt.Errorf("%w: the track changed before the skip landed", apperr.ErrCooldownActive)
		case isDJ && !moderator && !room.IsDJ(userID):
			return fmt.Errorf("%w: the decks moved on before the skip landed", apperr.ErrCooldownActive)
		}
		if opts.IfTrackURL != "" && !playing(room, opts.IfTrackURL) {
			return fmt.Errorf("%w: %s is no longer playing", apperr.ErrCooldownActive, opts.IfTrackURL)
		}
		if room.CurrentDJID == nil {
			return apperr.ErrNoActiveTrack
		}

		next, err := s.nextSong(ctx, tx, room, now)
		if err != nil {
			return err
		}
		if next != nil {
			result.Action = ActionNextSong
			changes = next
		} else {
			changes, err = s.advance(ctx, tx, room)
			if err != nil {
				return err
			}
			result.Action = ActionAdvanceQueue
		}

		result.Room = room
		return nil
	})
	if err != nil {
		return nil, err
	}

	events.PublishAll(ctx, s.events, changes...)
	return &result, nil
}

func playing(room *models.Room, trackURL string) bool {
	current := room.CurrentTrack()
	return current != nil && current.TrackURL == trackURL
}

// authorizeCrowdSkip checks the vote share on the playing track and returns
// the key of the track the votes were cast on.
func (s *Service) authorizeCrowdSkip(ctx context.Context, room *models.Room, userID uuid.UUID) (string, error) {
	key := room.CurrentTrackKey()
	if key == "" {
		return "", fmt.Errorf("%w: nothing is playing", apperr.ErrForbidden)
	}
	votes, err := s.store.ListVotes(ctx, room.ID, key)
	if err != nil {
		return "", fmt.Errorf("failed to list votes: %w", err)
	}
	counts := models.CountVotes(votes, key, userID)
	if counts.Total == 0 || counts.LamePercent < float64(room.LameThreshold) {
		return "", fmt.Errorf("%w: only %.0f%% lame, %d%% needed", apperr.ErrForbidden, counts.LamePercent, room.LameThreshold)
	}
	return key, nil
}

// nextSong pops the active DJ's next queued song, skipping any leading
// copies of the track that is ending. It returns nil changes when the DJ
// has nothing left.
func (s *Service) nextSong(ctx context.Context, tx database.Tx, room *models.Room, now time.Time) ([]events.Change, error) {
	current := room.CurrentTrack()
	if current == nil {
		return nil, nil
	}
	djID := *room.CurrentDJID

	entry, err := tx.GetQueueEntry(ctx, room.ID, djID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dj queue: %w", err)
	}

	remaining := entry.Songs.WithoutLeading(current)
	if len(remaining) == 0 {
		return nil, nil
	}
	next := remaining[0]
	rest := remaining[1:].Clone()

	if err := tx.UpdateQueueSongs(ctx, room.ID, djID, rest); err != nil {
		return nil, fmt.Errorf("failed to update dj queue: %w", err)
	}
	p := models.Playing(djID, room.ActiveDJSpot, next, now)
	if err := tx.SetPlayback(ctx, room.ID, p); err != nil {
		return nil, fmt.Errorf("failed to set playback: %w", err)
	}
	room.ApplyPlayback(p)

	history := models.NewHistoryEntry(room.ID, djID, next, now)
	if err := tx.AppendHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to append history: %w", err)
	}

	entry.Songs = rest
	return []events.Change{
		events.NewChange(events.OpUpdate, events.TableQueue, room.ID, entry),
		events.NewChange(events.OpUpdate, events.TableRooms, room.ID, room),
		events.NewChange(events.OpInsert, events.TableHistory, room.ID, history),
	}, nil
}

// advance hands the decks to the next seated DJ after the active spot, or
// empties them. The new DJ starts in Picking; their own session starts the
// first track.
func (s *Service) advance(ctx context.Context, tx database.Tx, room *models.Room) ([]events.Change, error) {
	entries, err := tx.ListQueue(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}

	p := models.Idle()
	if next, ok := models.NextInRotation(entries, room.ActiveDJSpot); ok {
		p = models.Picking(next.UserID, next.Spot)
	}
	if err := tx.SetPlayback(ctx, room.ID, p); err != nil {
		return nil, fmt.Errorf("failed to set playback: %w", err)
	}
	room.ApplyPlayback(p)

	return []events.Change{events.NewChange(events.OpUpdate, events.TableRooms, room.ID, room)}, nil
}

// Advance moves the rotation on after departedDJ left their spot. It does
// nothing if departedDJ no longer holds the decks, so a late or duplicate
// call cannot skip their successor.
func (s *Service) Advance(ctx context.Context, roomID, departedDJ uuid.UUID) (*models.Room, error) {
	var (
		room    *models.Room
		changes []events.Change
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		room, err = tx.LockRoom(ctx, roomID)
		if err != nil {
			return database.RoomError(err)
		}
		if !room.IsDJ(departedDJ) {
			return nil
		}
		changes, err = s.advance(ctx, tx, room)
		return err
	})
	if err != nil {
		return nil, err
	}

	events.PublishAll(ctx, s.events, changes...)
	return room, nil
}
