package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/database"
	"github.com/listening-room-system/pkg/events"
	"github.com/listening-room-system/pkg/models"
	cache "github.com/listening-room-system/pkg/redis"
)

const (
	maxSlugLength   = 50
	maxNameLength   = 255
	slugAttempts    = 100
	DefaultHistory  = 50
	MaxHistoryLimit = 200
)

var (
	slugStrip  = regexp.MustCompile(`[^a-z0-9 -]`)
	slugDashes = regexp.MustCompile(`-+`)
)

// Slugify lowercases name, drops everything but letters, digits, spaces and
// dashes, and turns runs of spaces and dashes into a single dash.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugStrip.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, " ", "-")
	s = slugDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	return s
}

type Service struct {
	store            database.Store
	cache            *cache.RoomCache
	events           events.Publisher
	defaultThreshold int
}

func NewService(store database.Store, roomCache *cache.RoomCache, publisher events.Publisher, defaultThreshold int) *Service {
	return &Service{
		store:            store,
		cache:            roomCache,
		events:           publisher,
		defaultThreshold: defaultThreshold,
	}
}

type CreateInput struct {
	Name          string  `json:"name"`
	Description   *string `json:"description"`
	LameThreshold *int    `json:"lame_threshold"`
}

type SettingsInput struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	LameThreshold *int    `json:"lame_threshold"`
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: room name is required", apperr.ErrInvalidInput)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("%w: room name is too long", apperr.ErrInvalidInput)
	}
	return name, nil
}

func validThreshold(t int) error {
	if t < 0 || t > 100 {
		return fmt.Errorf("%w: lame_threshold must be between 0 and 100", apperr.ErrInvalidInput)
	}
	return nil
}

// CreateRoom makes ownerID the owner of a new room with a unique slug.
func (s *Service) CreateRoom(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*models.Room, error) {
	name, err := validName(in.Name)
	if err != nil {
		return nil, err
	}
	threshold := s.defaultThreshold
	if in.LameThreshold != nil {
		threshold = *in.LameThreshold
	}
	if err := validThreshold(threshold); err != nil {
		return nil, err
	}

	base := Slugify(name)
	if base == "" {
		base = "room"
	}

	room := &models.Room{
		ID:            uuid.New(),
		Name:          name,
		Description:   in.Description,
		OwnerID:       ownerID,
		LameThreshold: threshold,
	}

	// A concurrent create can take the slug between the check and the insert.
	for attempt := 0; attempt < slugAttempts; attempt++ {
		slug, err := s.freeSlug(ctx, base, attempt)
		if err != nil {
			return nil, err
		}
		room.Slug = slug
		err = s.store.CreateRoom(ctx, room)
		if err == nil {
			events.PublishAll(ctx, s.events, events.NewChange(events.OpInsert, events.TableRooms, room.ID, room))
			return room, nil
		}
		if !errors.Is(err, database.ErrConflict) {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to create room: no free slug for %q", base)
}

// freeSlug returns base or the first base-N not in use, starting at N=from.
func (s *Service) freeSlug(ctx context.Context, base string, from int) (string, error) {
	for n := from; ; n++ {
		slug := base
		if n > 0 {
			slug = fmt.Sprintf("%s-%d", base, n)
		}
		taken, err := s.store.SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !taken {
			return slug, nil
		}
	}
}

// GetRoom reads through the room cache. Playback decisions must not use it.
func (s *Service) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	if room, err := s.cache.Get(ctx, roomID); err != nil {
		log.Printf("Warning: room cache read failed: %v", err)
	} else if room != nil {
		return room, nil
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, database.RoomError(err)
	}
	if err := s.cache.Set(ctx, room); err != nil {
		log.Printf("Warning: failed to cache room: %v", err)
	}
	return room, nil
}

func (s *Service) GetRoomBySlug(ctx context.Context, slug string) (*models.Room, error) {
	room, err := s.store.GetRoomBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, database.RoomError(err)
	}
	if err := s.cache.Set(ctx, room); err != nil {
		log.Printf("Warning: failed to cache room: %v", err)
	}
	return room, nil
}

// moderate runs fn on the locked room if actorID is its owner or an admin.
func (s *Service) moderate(ctx context.Context, roomID, actorID uuid.UUID, action string, fn func(tx database.Tx, room *models.Room) error) error {
	return s.store.InTx(ctx, func(tx database.Tx) error {
		room, err := tx.LockRoom(ctx, roomID)
		if err != nil {
			return database.RoomError(err)
		}
		ok, err := database.CanModerate(ctx, tx, room, actorID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: only the room owner or an admin can %s", apperr.ErrForbidden, action)
		}
		return fn(tx, room)
	})
}

func (s *Service) UpdateSettings(ctx context.Context, roomID, actorID uuid.UUID, in SettingsInput) (*models.Room, error) {
	var settings database.RoomSettings
	if in.Name != nil {
		name, err := validName(*in.Name)
		if err != nil {
			return nil, err
		}
		settings.Name = &name
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		settings.Description = &d
	}
	if in.LameThreshold != nil {
		if err := validThreshold(*in.LameThreshold); err != nil {
			return nil, err
		}
		settings.LameThreshold = in.LameThreshold
	}

	return s.updateRoom(ctx, roomID, actorID, "change room settings", func(database.Tx) (database.RoomSettings, error) {
		return settings, nil
	})
}

func (s *Service) TransferOwnership(ctx context.Context, roomID, actorID, newOwnerID uuid.UUID) (*models.Room, error) {
	return s.updateRoom(ctx, roomID, actorID, "transfer ownership", func(tx database.Tx) (database.RoomSettings, error) {
		if _, err := tx.GetUser(ctx, newOwnerID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return database.RoomSettings{}, fmt.Errorf("%w: unknown user %s", apperr.ErrInvalidInput, newOwnerID)
			}
			return database.RoomSettings{}, fmt.Errorf("failed to load user: %w", err)
		}
		return database.RoomSettings{OwnerID: &newOwnerID}, nil
	})
}

func (s *Service) updateRoom(ctx context.Context, roomID, actorID uuid.UUID, action string, build func(tx database.Tx) (database.RoomSettings, error)) (*models.Room, error) {
	var updated *models.Room
	err := s.moderate(ctx, roomID, actorID, action, func(tx database.Tx, _ *models.Room) error {
		settings, err := build(tx)
		if err != nil {
			return err
		}
		if err := tx.UpdateRoomSettings(ctx, roomID, settings); err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}
		updated, err = tx.GetRoom(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to reload room: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, roomID)
	events.PublishAll(ctx, s.events, events.NewChange(events.OpUpdate, events.TableRooms, roomID, updated))
	return updated, nil
}

// DeleteRoom removes the room with its roster, votes and history.
func (s *Service) DeleteRoom(ctx context.Context, roomID, actorID uuid.UUID) error {
	var deleted *models.Room
	err := s.moderate(ctx, roomID, actorID, "delete the room", func(tx database.Tx, room *models.Room) error {
		if err := tx.DeleteRoom(ctx, roomID); err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		deleted = room
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, roomID)
	events.PublishAll(ctx, s.events, events.NewChange(events.OpDelete, events.TableRooms, roomID, deleted))
	return nil
}

func (s *Service) invalidate(ctx context.Context, roomID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, roomID); err != nil {
		log.Printf("Warning: failed to invalidate cached room %s: %v", roomID, err)
	}
}

// Snapshot always reads the store; sessions derive playback from it.
func (s *Service) Snapshot(ctx context.Context, roomID uuid.UUID) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return database.RoomError(err)
		}
		entries, err := tx.ListQueue(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to list queue: %w", err)
		}
		snap = models.Snapshot{Room: room, State: room.State(), Queue: entries}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// History lists played tracks newest first. Limits outside 1..200 are clamped.
func (s *Service) History(ctx context.Context, roomID uuid.UUID, limit int) ([]models.SongHistoryEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistory
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, database.RoomError(err)
	}
	entries, err := s.store.ListHistory(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	if entries == nil {
		entries = []models.SongHistoryEntry{}
	}
	return entries, nil
}
