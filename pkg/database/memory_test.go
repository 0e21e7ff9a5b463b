package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listening-room-system/pkg/models"
)

func seedRoom(t *testing.T, s *MemoryStore) *models.Room {
	t.Helper()
	room := &models.Room{ID: uuid.New(), Slug: "room-" + uuid.NewString()[:8], Name: "Room", OwnerID: uuid.New(), LameThreshold: 50}
	require.NoError(t, s.CreateRoom(context.Background(), room))
	return room
}

func TestMemoryClaimSkip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	room := seedRoom(t, s)
	now := time.Now()

	t.Run("first claim wins", func(t *testing.T) {
		stale := now.Add(-5 * time.Second)
		ok, err := s.ClaimSkip(ctx, room.ID, now, &stale)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("second claim inside window loses", func(t *testing.T) {
		later := now.Add(time.Second)
		stale := later.Add(-5 * time.Second)
		ok, err := s.ClaimSkip(ctx, room.ID, later, &stale)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("claim after window wins", func(t *testing.T) {
		later := now.Add(6 * time.Second)
		stale := later.Add(-5 * time.Second)
		ok, err := s.ClaimSkip(ctx, room.ID, later, &stale)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unconditional claim always stamps", func(t *testing.T) {
		ok, err := s.ClaimSkip(ctx, room.ID, now.Add(6*time.Second), nil)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing room matches nothing", func(t *testing.T) {
		ok, err := s.ClaimSkip(ctx, uuid.New(), now, nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryClaimSkipConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	room := seedRoom(t, s)
	now := time.Now()
	stale := now.Add(-5 * time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimSkip(ctx, room.ID, now, &stale)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	room := seedRoom(t, s)
	user := uuid.New()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertQueueEntry(ctx, &models.DJQueueEntry{RoomID: room.ID, UserID: user, Spot: 1}))
		ok, err := tx.ActivateDJIfIdle(ctx, room.ID, user, 1)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := s.ListQueue(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentDJID)
}

func TestMemoryQueueConstraints(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	room := seedRoom(t, s)
	a, b := uuid.New(), uuid.New()

	require.NoError(t, s.InsertQueueEntry(ctx, &models.DJQueueEntry{RoomID: room.ID, UserID: a, Spot: 1}))
	assert.ErrorIs(t, s.InsertQueueEntry(ctx, &models.DJQueueEntry{RoomID: room.ID, UserID: b, Spot: 1}), ErrConflict)
	assert.ErrorIs(t, s.InsertQueueEntry(ctx, &models.DJQueueEntry{RoomID: room.ID, UserID: a, Spot: 2}), ErrConflict)

	songs := models.TrackList{{Source: models.SourceSuno, TrackURL: "https://cdn1.suno.ai/x.mp3", Title: "Suno Track"}}
	require.NoError(t, s.UpdateQueueSongs(ctx, room.ID, a, songs))
	songs[0].Title = "mutated by caller"

	entry, err := s.GetQueueEntry(ctx, room.ID, a)
	require.NoError(t, err)
	assert.Equal(t, "Suno Track", entry.Songs[0].Title)

	removed, err := s.DeleteQueueEntry(ctx, room.ID, a)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.DeleteQueueEntry(ctx, room.ID, a)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMemoryVotesAndHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	room := seedRoom(t, s)
	user := uuid.New()

	v := &models.Vote{RoomID: room.ID, UserID: user, TrackKey: "youtube:abcdefghijk", VoteType: models.VoteLame}
	require.NoError(t, s.InsertVote(ctx, v))
	assert.ErrorIs(t, s.InsertVote(ctx, &models.Vote{RoomID: room.ID, UserID: user, TrackKey: v.TrackKey, VoteType: models.VoteAwesome}), ErrConflict)

	require.NoError(t, s.UpdateVoteType(ctx, v.ID, models.VoteAwesome))
	votes, err := s.ListVotes(ctx, room.ID, v.TrackKey)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, models.VoteAwesome, votes[0].VoteType)

	base := time.Now()
	for i := 0; i < 3; i++ {
		tr := models.TrackInfo{Source: models.SourceYouTube, TrackURL: "https://youtu.be/x", Title: string(rune('a' + i))}
		require.NoError(t, s.AppendHistory(ctx, models.NewHistoryEntry(room.ID, user, tr, base.Add(time.Duration(i)*time.Second))))
	}
	hist, err := s.ListHistory(ctx, room.ID, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "c", hist[0].TrackTitle)
	assert.Equal(t, "b", hist[1].TrackTitle)
}

func TestMemoryDeleteRoomCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	room := seedRoom(t, s)
	other := seedRoom(t, s)
	user := uuid.New()

	for _, r := range []*models.Room{room, other} {
		require.NoError(t, s.InsertQueueEntry(ctx, &models.DJQueueEntry{RoomID: r.ID, UserID: user, Spot: 1}))
		require.NoError(t, s.InsertVote(ctx, &models.Vote{RoomID: r.ID, UserID: user, TrackKey: "k", VoteType: models.VoteLame}))
	}

	require.NoError(t, s.DeleteRoom(ctx, room.ID))
	_, err := s.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	entries, _ := s.ListQueue(ctx, room.ID)
	assert.Empty(t, entries)
	entries, _ = s.ListQueue(ctx, other.ID)
	assert.Len(t, entries, 1)

	assert.ErrorIs(t, s.DeleteRoom(ctx, room.ID), ErrNotFound)
}

func TestMemoryEnsureUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := uuid.New()

	require.NoError(t, s.EnsureUser(ctx, &models.User{ID: id, Username: "dj"}))
	require.NoError(t, s.EnsureUser(ctx, &models.User{ID: id, Username: "dj"}))
	require.NoError(t, s.SetAdmin(ctx, id, true))

	u, err := s.GetUser(ctx, id)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
	assert.ErrorIs(t, s.SetAdmin(ctx, uuid.New(), true), ErrNotFound)
}
