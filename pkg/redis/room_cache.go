package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/listening-room-system/pkg/models"
)

// RoomCache holds serialized rooms for read endpoints. Playback decisions
// never read through it. A nil client turns every call into a miss.
type RoomCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomCache(client *redis.Client, ttl time.Duration) *RoomCache {
	return &RoomCache{client: client, ttl: ttl}
}

func roomKey(id uuid.UUID) string {
	return fmt.Sprintf("room:%s", id)
}

// Get returns the cached room, or nil on a miss.
func (c *RoomCache) Get(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	raw, err := c.client.Get(ctx, roomKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}

func (c *RoomCache) Set(ctx context.Context, room *models.Room) error {
	if c == nil || c.client == nil || room == nil {
		return nil
	}
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}
	if err := c.client.Set(ctx, roomKey(room.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store room: %w", err)
	}
	return nil
}

func (c *RoomCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, roomKey(id)).Err()
}
