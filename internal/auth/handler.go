package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/listening-room-system/internal/middleware"
	"github.com/listening-room-system/pkg/models"
)

type UserStore interface {
	EnsureUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type TokenRevoker interface {
	Revocations
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
}

type Handler struct {
	users  UserStore
	tokens TokenRevoker
	secret string
}

func NewHandler(users UserStore, tokens TokenRevoker, secret string) *Handler {
	return &Handler{
		users:  users,
		tokens: tokens,
		secret: secret,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth", AuthMiddleware(h.secret, h.tokens))
	{
		auth.GET("/me", h.me)
		auth.POST("/logout", h.logout)
	}
}

// me registers the caller on first sight and returns their profile.
func (h *Handler) me(c *gin.Context) {
	userID, err := UserID(c)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	username := c.GetString("username")
	if err := h.users.EnsureUser(ctx, &models.User{ID: userID, Username: username, DisplayName: username}); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) logout(c *gin.Context) {
	expiresAt, _ := c.Get("token_expires_at")
	until, ok := expiresAt.(time.Time)
	if !ok {
		until = time.Now().Add(24 * time.Hour)
	}

	if err := h.tokens.Revoke(c.Request.Context(), c.GetString("jti"), until); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     "auth_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
