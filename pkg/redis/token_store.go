package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore keeps the ids of revoked access tokens until they would have
// expired anyway. A nil client means revocation is disabled.
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore creates a new token store with the given Redis client
func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func revokedKey(jti string) string {
	return fmt.Sprintf("revoked:%s", jti)
}

// Revoke marks the token id as revoked until expiresAt.
func (s *TokenStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if s == nil || s.client == nil || jti == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *TokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s == nil || s.client == nil || jti == "" {
		return false, nil
	}
	n, err := s.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return n > 0, nil
}
