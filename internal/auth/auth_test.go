package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listening-room-system/pkg/database"
	"github.com/listening-room-system/pkg/jwt"
)

const secret = "test-secret"

type memRevoker struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

func (r *memRevoker) Revoke(_ context.Context, jti string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[jti] = until
	return nil
}

func (r *memRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[jti]
	return ok, nil
}

func setup(t *testing.T) (*gin.Engine, *database.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := database.NewMemoryStore()
	r := gin.New()
	NewHandler(store, &memRevoker{ids: map[string]time.Time{}}, secret).RegisterRoutes(r.Group("/api/v1"))
	return r, store
}

func token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	tok, err := jwt.GenerateToken(userID.String(), "selector", secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestTokenSources(t *testing.T) {
	r, _ := setup(t)
	userID := uuid.New()
	tok := token(t, userID)

	tests := []struct {
		name   string
		build  func(req *http.Request)
		status int
	}{
		{"missing", func(req *http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+tok) }, http.StatusOK},
		{"cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "auth_token", Value: tok}) }, http.StatusOK},
		{"query", func(req *http.Request) { req.URL.RawQuery = "token=" + tok }, http.StatusOK},
		{"garbage", func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			tt.build(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestMeRegistersUser(t *testing.T) {
	r, store := setup(t)
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, userID))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		User struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			IsAdmin  bool   `json:"is_admin"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, userID.String(), body.User.ID)
	assert.Equal(t, "selector", body.User.Username)
	assert.False(t, body.User.IsAdmin)

	u, err := store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "selector", u.Username)
}

func TestLogoutRevokesToken(t *testing.T) {
	r, _ := setup(t)
	tok := token(t, uuid.New())

	do := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/api/v1/auth/logout"))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/api/v1/auth/me"))
}
