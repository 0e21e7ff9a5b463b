package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/database"
	"github.com/listening-room-system/pkg/events"
	"github.com/listening-room-system/pkg/models"
)

// Service owns the three-spot DJ roster and each DJ's song list.
type Service struct {
	store  database.Store
	events events.Publisher
}

func NewService(store database.Store, publisher events.Publisher) *Service {
	return &Service{
		store:  store,
		events: publisher,
	}
}

type ClaimResult struct {
	Entry *models.DJQueueEntry `json:"entry"`
	// Activated is set when the claim also made the caller the active DJ.
	Activated bool `json:"activated"`
}

type LeaveResult struct {
	Removed bool `json:"removed"`
	// WasActiveDJ tells the caller it must advance the rotation.
	WasActiveDJ bool `json:"was_active_dj"`
}

// ClaimSpot seats userID at the lowest free spot and, if nobody is at the
// decks, makes them the active DJ in the same transaction.
func (s *Service) ClaimSpot(ctx context.Context, roomID, userID uuid.UUID) (*ClaimResult, error) {
	var (
		result ClaimResult
		room   *models.Room
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		// The room lock serializes concurrent claims.
		room, err = tx.LockRoom(ctx, roomID)
		if err != nil {
			return database.RoomError(err)
		}

		entries, err := tx.ListQueue(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to list queue: %w", err)
		}
		for _, e := range entries {
			if e.UserID == userID {
				return fmt.Errorf("%w: spot %d", apperr.ErrAlreadyQueued, e.Spot)
			}
		}
		spot, ok := models.LowestFreeSpot(entries)
		if !ok {
			return apperr.ErrNoSpotsAvailable
		}

		entry := &models.DJQueueEntry{
			ID:     uuid.New(),
			RoomID: roomID,
			UserID: userID,
			Spot:   spot,
			Songs:  models.TrackList{},
		}
		if err := tx.InsertQueueEntry(ctx, entry); err != nil {
			if errors.Is(err, database.ErrConflict) {
				return fmt.Errorf("%w: spot %d was taken concurrently", apperr.ErrNoSpotsAvailable, spot)
			}
			return fmt.Errorf("failed to insert queue entry: %w", err)
		}
		result.Entry = entry

		activated, err := tx.ActivateDJIfIdle(ctx, roomID, userID, spot)
		if err != nil {
			return fmt.Errorf("failed to activate dj: %w", err)
		}
		if activated {
			room.ApplyPlayback(models.Picking(userID, spot))
		}
		result.Activated = activated
		return nil
	})
	if err != nil {
		return nil, err
	}

	changes := []events.Change{events.NewChange(events.OpInsert, events.TableQueue, roomID, result.Entry)}
	if result.Activated {
		changes = append(changes, events.NewChange(events.OpUpdate, events.TableRooms, roomID, room))
	}
	events.PublishAll(ctx, s.events, changes...)

	return &result, nil
}

// LeaveSpot removes the caller's roster row. It never touches playback; if
// WasActiveDJ is set the caller must run the advance.
func (s *Service) LeaveSpot(ctx context.Context, roomID, userID uuid.UUID) (*LeaveResult, error) {
	return s.remove(ctx, roomID, userID, func(database.Tx, *models.Room) error { return nil })
}

// RemoveDJ is LeaveSpot on someone else's behalf, for the room owner or an
// admin.
func (s *Service) RemoveDJ(ctx context.Context, roomID, actorID, targetID uuid.UUID) (*LeaveResult, error) {
	return s.remove(ctx, roomID, targetID, func(tx database.Tx, room *models.Room) error {
		ok, err := database.CanModerate(ctx, tx, room, actorID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: only the room owner or an admin can remove a dj", apperr.ErrForbidden)
		}
		return nil
	})
}

func (s *Service) remove(ctx context.Context, roomID, userID uuid.UUID, authorize func(database.Tx, *models.Room) error) (*LeaveResult, error) {
	var (
		result  LeaveResult
		removed *models.DJQueueEntry
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return database.RoomError(err)
		}
		if err := authorize(tx, room); err != nil {
			return err
		}

		// Reported even without a seat so a repeated leave can retry an advance.
		result.WasActiveDJ = room.IsDJ(userID)

		entry, err := tx.GetQueueEntry(ctx, roomID, userID)
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load queue entry: %w", err)
		}

		ok, err := tx.DeleteQueueEntry(ctx, roomID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete queue entry: %w", err)
		}
		if ok {
			removed = entry
		}
		result.Removed = ok
		return nil
	})
	if err != nil {
		return nil, err
	}

	if removed != nil {
		events.PublishAll(ctx, s.events, events.NewChange(events.OpDelete, events.TableQueue, roomID, removed))
	}
	return &result, nil
}

// UpdateSongs replaces the caller's song list with songs, in order.
func (s *Service) UpdateSongs(ctx context.Context, roomID, userID uuid.UUID, songs models.TrackList) (*models.DJQueueEntry, error) {
	if len(songs) > models.MaxSongsPerDJ {
		return nil, fmt.Errorf("%w: at most %d songs", apperr.ErrQueueFull, models.MaxSongsPerDJ)
	}
	for i, t := range songs {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("song %d: %w", i+1, err)
		}
	}
	if songs == nil {
		songs = models.TrackList{}
	}

	var entry *models.DJQueueEntry
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		if _, err := tx.GetRoom(ctx, roomID); err != nil {
			return database.RoomError(err)
		}

		var err error
		entry, err = tx.GetQueueEntry(ctx, roomID, userID)
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: you do not hold a dj spot in this room", apperr.ErrForbidden)
		}
		if err != nil {
			return fmt.Errorf("failed to load queue entry: %w", err)
		}

		if err := tx.UpdateQueueSongs(ctx, roomID, userID, songs); err != nil {
			return fmt.Errorf("failed to update songs: %w", err)
		}
		entry.Songs = songs.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	events.PublishAll(ctx, s.events, events.NewChange(events.OpUpdate, events.TableQueue, roomID, entry))
	return entry, nil
}

func (s *Service) GetQueue(ctx context.Context, roomID uuid.UUID) ([]models.DJQueueEntry, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, database.RoomError(err)
	}
	entries, err := s.store.ListQueue(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	return entries, nil
}
