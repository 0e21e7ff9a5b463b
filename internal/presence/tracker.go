package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Tracker records who is listening in a room. Entries that miss heartbeats
// for longer than the TTL drop out.
type Tracker interface {
	Touch(ctx context.Context, roomID, userID uuid.UUID) error
	Leave(ctx context.Context, roomID, userID uuid.UUID) error
	Count(ctx context.Context, roomID uuid.UUID) (int, error)
	Members(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)
}

// RedisTracker keeps one sorted set per room, scored by last heartbeat.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, ttl: ttl, now: time.Now}
}

func presenceKey(roomID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", roomID)
}

func (t *RedisTracker) Touch(ctx context.Context, roomID, userID uuid.UUID) error {
	key := presenceKey(roomID)
	pipe := t.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(t.now().UnixMilli()), Member: userID.String()})
	pipe.Expire(ctx, key, 2*t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

func (t *RedisTracker) Leave(ctx context.Context, roomID, userID uuid.UUID) error {
	return t.client.ZRem(ctx, presenceKey(roomID), userID.String()).Err()
}

func (t *RedisTracker) prune(ctx context.Context, key string) error {
	cutoff := strconv.FormatInt(t.now().Add(-t.ttl).UnixMilli(), 10)
	return t.client.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff).Err()
}

func (t *RedisTracker) Count(ctx context.Context, roomID uuid.UUID) (int, error) {
	key := presenceKey(roomID)
	if err := t.prune(ctx, key); err != nil {
		return 0, fmt.Errorf("failed to prune presence: %w", err)
	}
	n, err := t.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count presence: %w", err)
	}
	return int(n), nil
}

func (t *RedisTracker) Members(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	key := presenceKey(roomID)
	if err := t.prune(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to prune presence: %w", err)
	}
	raw, err := t.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	members := make([]uuid.UUID, 0, len(raw))
	for _, m := range raw {
		if id, err := uuid.Parse(m); err == nil {
			members = append(members, id)
		}
	}
	return members, nil
}

// LocalTracker is the in-process Tracker used when Redis is not configured.
type LocalTracker struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[uuid.UUID]time.Time
	ttl   time.Duration
	now   func() time.Time
}

func NewLocalTracker(ttl time.Duration) *LocalTracker {
	return &LocalTracker{
		rooms: make(map[uuid.UUID]map[uuid.UUID]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (t *LocalTracker) Touch(_ context.Context, roomID, userID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rooms[roomID] == nil {
		t.rooms[roomID] = make(map[uuid.UUID]time.Time)
	}
	t.rooms[roomID][userID] = t.now()
	return nil
}

func (t *LocalTracker) Leave(_ context.Context, roomID, userID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms[roomID], userID)
	return nil
}

// live prunes expired entries; callers hold mu.
func (t *LocalTracker) live(roomID uuid.UUID) map[uuid.UUID]time.Time {
	members := t.rooms[roomID]
	cutoff := t.now().Add(-t.ttl)
	for id, seen := range members {
		if seen.Before(cutoff) {
			delete(members, id)
		}
	}
	if len(members) == 0 {
		delete(t.rooms, roomID)
	}
	return members
}

func (t *LocalTracker) Count(_ context.Context, roomID uuid.UUID) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live(roomID)), nil
}

func (t *LocalTracker) Members(_ context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	members := make([]uuid.UUID, 0)
	for id := range t.live(roomID) {
		members = append(members, id)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].String() < members[j].String() })
	return members, nil
}
