package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/listening-room-system/pkg/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// RoomSettings holds the optional room columns an owner may change.
type RoomSettings struct {
	Name          *string
	Description   *string
	LameThreshold *int
	OwnerID       *uuid.UUID
}

// Tx is the set of row-level operations the room services need. Every
// method is a single round-trip; multi-step transitions go through InTx.
type Tx interface {
	EnsureUser(ctx context.Context, user *models.User) error
	SetAdmin(ctx context.Context, userID uuid.UUID, admin bool) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	// LockRoom reads the room and holds its row lock until the transaction ends.
	LockRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomBySlug(ctx context.Context, slug string) (*models.Room, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpdateRoomSettings(ctx context.Context, id uuid.UUID, s RoomSettings) error
	DeleteRoom(ctx context.Context, id uuid.UUID) error

	// SetPlayback writes every playback column at once.
	SetPlayback(ctx context.Context, roomID uuid.UUID, p models.Playback) error
	// ActivateDJIfIdle makes userID the active DJ only if nobody is.
	ActivateDJIfIdle(ctx context.Context, roomID, userID uuid.UUID, spot int) (bool, error)
	// ClaimSkip stamps last_skipped_at = now if it is null or older than
	// staleBefore. A nil staleBefore always stamps. Reports whether a row matched.
	ClaimSkip(ctx context.Context, roomID uuid.UUID, now time.Time, staleBefore *time.Time) (bool, error)

	ListQueue(ctx context.Context, roomID uuid.UUID) ([]models.DJQueueEntry, error)
	GetQueueEntry(ctx context.Context, roomID, userID uuid.UUID) (*models.DJQueueEntry, error)
	InsertQueueEntry(ctx context.Context, entry *models.DJQueueEntry) error
	UpdateQueueSongs(ctx context.Context, roomID, userID uuid.UUID, songs models.TrackList) error
	DeleteQueueEntry(ctx context.Context, roomID, userID uuid.UUID) (bool, error)

	GetVote(ctx context.Context, roomID, userID uuid.UUID, trackKey string) (*models.Vote, error)
	InsertVote(ctx context.Context, vote *models.Vote) error
	UpdateVoteType(ctx context.Context, id uuid.UUID, voteType models.VoteType) error
	DeleteVote(ctx context.Context, id uuid.UUID) error
	ListVotes(ctx context.Context, roomID uuid.UUID, trackKey string) ([]models.Vote, error)

	AppendHistory(ctx context.Context, entry *models.SongHistoryEntry) error
	ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]models.SongHistoryEntry, error)
}

// Store is a Tx that can also open transactions.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
