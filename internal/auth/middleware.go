package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/listening-room-system/internal/middleware"
	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/jwt"
)

// Revocations reports whether a token id has been revoked.
type Revocations interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

func tokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := c.Cookie("auth_token"); err == nil && cookie != "" {
		return cookie
	}
	// Browsers cannot set headers on websocket upgrades.
	return c.Query("token")
}

func AuthMiddleware(secret string, revoked Revocations) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			middleware.AbortWithError(c, fmt.Errorf("%w: missing token", apperr.ErrUnauthorized))
			return
		}

		claims, err := jwt.ValidateToken(token, secret)
		if err != nil {
			middleware.AbortWithError(c, fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized))
			return
		}

		if revoked != nil {
			isRevoked, err := revoked.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				middleware.AbortWithError(c, err)
				return
			}
			if isRevoked {
				middleware.AbortWithError(c, fmt.Errorf("%w: token revoked", apperr.ErrUnauthorized))
				return
			}
		}

		// Set user ID in context
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("jti", claims.ID)
		if claims.ExpiresAt != nil {
			c.Set("token_expires_at", claims.ExpiresAt.Time)
		}
		c.Next()
	}
}

// UserID returns the authenticated caller. Handlers behind AuthMiddleware
// can rely on it being present.
func UserID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: no caller identity", apperr.ErrUnauthorized)
	}
	return id, nil
}
