package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window limiter keyed by authenticated user, or by
// client IP when the route is public. With a nil client every request
// passes.
func RateLimiter(redisClient *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || limit <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		subject := c.GetString("user_id")
		if subject == "" {
			subject = c.ClientIP()
		}
		key := fmt.Sprintf("rate_limit:%s", subject)

		count, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			// Log error and bypass if Redis fails
			log.Printf("WARN: Rate limiter failed to increment key: %v", err)
			c.Next()
			return
		}
		if count == 1 {
			if err := redisClient.Expire(ctx, key, window).Err(); err != nil {
				log.Printf("WARN: Rate limiter failed to set expiry: %v", err)
			}
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		if count > int64(limit) {
			ttl, _ := redisClient.TTL(ctx, key).Result()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"code":        "rate_limited",
				"retry_after": ttl.Seconds(),
			})
			return
		}
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int64(limit)-count))

		c.Next()
	}
}
