package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	t.Setenv("CROWD_SKIP_COOLDOWN", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_HOST", "")

	cfg := New()
	assert.Equal(t, 5*time.Second, cfg.CrowdSkipCooldown)
	assert.Equal(t, 50, cfg.DefaultLameThreshold)
	assert.Equal(t, 45*time.Second, cfg.PresenceTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.RedisHost)
	assert.False(t, cfg.IsProduction())
}

func TestOverrides(t *testing.T) {
	t.Setenv("CROWD_SKIP_COOLDOWN", "12s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DEFAULT_LAME_THRESHOLD", "not-a-number")
	t.Setenv("PRESENCE_TTL", "soon")
	t.Setenv("ENV", "production")

	cfg := New()
	assert.Equal(t, 12*time.Second, cfg.CrowdSkipCooldown)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 50, cfg.DefaultLameThreshold)
	assert.Equal(t, 45*time.Second, cfg.PresenceTTL)
	assert.True(t, cfg.IsProduction())
}
