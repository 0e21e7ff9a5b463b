package vote

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/database"
	"github.com/listening-room-system/pkg/events"
	"github.com/listening-room-system/pkg/models"
)

// ListenerCounter reports how many listeners are in a room right now.
type ListenerCounter interface {
	Count(ctx context.Context, roomID uuid.UUID) (int, error)
}

type Service struct {
	store     database.Store
	events    events.Publisher
	listeners ListenerCounter
}

func NewService(store database.Store, publisher events.Publisher, listeners ListenerCounter) *Service {
	return &Service{
		store:     store,
		events:    publisher,
		listeners: listeners,
	}
}

// CastVote toggles the caller's vote on the playing track: a new vote is
// recorded, the same vote again is withdrawn, and the opposite vote
// replaces it.
func (s *Service) CastVote(ctx context.Context, roomID, userID uuid.UUID, voteType models.VoteType) (*models.VoteCounts, error) {
	if !voteType.Valid() {
		return nil, fmt.Errorf("%w: vote must be %q or %q", apperr.ErrInvalidInput, models.VoteAwesome, models.VoteLame)
	}

	change, err := s.castVote(ctx, roomID, userID, voteType)
	if errors.Is(err, database.ErrConflict) {
		// A concurrent first vote from the same user landed; the row
		// exists now, so the retry takes the toggle path.
		change, err = s.castVote(ctx, roomID, userID, voteType)
	}
	if err != nil {
		return nil, err
	}

	events.PublishAll(ctx, s.events, change)
	return s.Tally(ctx, roomID, userID)
}

func (s *Service) castVote(ctx context.Context, roomID, userID uuid.UUID, voteType models.VoteType) (events.Change, error) {
	var change events.Change
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return database.RoomError(err)
		}
		key := room.CurrentTrackKey()
		if key == "" {
			return apperr.ErrNoActiveTrack
		}

		existing, err := tx.GetVote(ctx, roomID, userID, key)
		switch {
		case errors.Is(err, database.ErrNotFound):
			v := &models.Vote{
				ID:       uuid.New(),
				RoomID:   roomID,
				UserID:   userID,
				TrackKey: key,
				VoteType: voteType,
				DJID:     room.CurrentDJID,
			}
			if err := tx.InsertVote(ctx, v); err != nil {
				if errors.Is(err, database.ErrConflict) {
					return err
				}
				return fmt.Errorf("failed to insert vote: %w", err)
			}
			change = events.NewChange(events.OpInsert, events.TableVotes, roomID, v)
		case err != nil:
			return fmt.Errorf("failed to load vote: %w", err)
		case existing.VoteType == voteType:
			if err := tx.DeleteVote(ctx, existing.ID); err != nil {
				return fmt.Errorf("failed to delete vote: %w", err)
			}
			change = events.NewChange(events.OpDelete, events.TableVotes, roomID, existing)
		default:
			if err := tx.UpdateVoteType(ctx, existing.ID, voteType); err != nil {
				return fmt.Errorf("failed to update vote: %w", err)
			}
			existing.VoteType = voteType
			change = events.NewChange(events.OpUpdate, events.TableVotes, roomID, existing)
		}
		return nil
	})
	return change, err
}

// Tally counts votes on the room's playing track only; rows left over from
// earlier tracks never match.
func (s *Service) Tally(ctx context.Context, roomID, userID uuid.UUID) (*models.VoteCounts, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, database.RoomError(err)
	}

	key := room.CurrentTrackKey()
	var votes []models.Vote
	if key != "" {
		votes, err = s.store.ListVotes(ctx, roomID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to list votes: %w", err)
		}
	}
	counts := models.CountVotes(votes, key, userID)

	if s.listeners != nil {
		n, err := s.listeners.Count(ctx, roomID)
		if err != nil {
			log.Printf("Warning: failed to count listeners in room %s: %v", roomID, err)
		}
		counts.Listeners = n
	}
	return &counts, nil
}
