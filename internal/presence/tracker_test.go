package presence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTracker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	tr := NewLocalTracker(45 * time.Second)
	tr.now = func() time.Time { return now }

	room := uuid.New()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, tr.Touch(ctx, room, a))
	now = now.Add(30 * time.Second)
	require.NoError(t, tr.Touch(ctx, room, b))

	n, err := tr.Count(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	t.Run("stale entries drop out", func(t *testing.T) {
		now = now.Add(20 * time.Second)
		members, err := tr.Members(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{b}, members)
	})

	t.Run("heartbeat keeps a member", func(t *testing.T) {
		require.NoError(t, tr.Touch(ctx, room, b))
		now = now.Add(40 * time.Second)
		n, err := tr.Count(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("leave", func(t *testing.T) {
		require.NoError(t, tr.Leave(ctx, room, b))
		n, err := tr.Count(ctx, room)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("rooms are independent", func(t *testing.T) {
		other := uuid.New()
		require.NoError(t, tr.Touch(ctx, other, a))
		n, err := tr.Count(ctx, room)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestPresenceKey(t *testing.T) {
	id := uuid.MustParse("6f1c2a52-5b5e-4b86-9d1e-3f0a4c7a9b10")
	assert.Equal(t, "presence:6f1c2a52-5b5e-4b86-9d1e-3f0a4c7a9b10", presenceKey(id))
}
