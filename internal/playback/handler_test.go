package playback

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func router(svc *Service, caller uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", caller.String())
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestPlayAndSkipOverHTTP(t *testing.T) {
	f := newFixture(t)
	dj := uuid.New()
	f.seat(t, dj)
	r := router(f.playback, dj)
	base := "/api/v1/rooms/" + f.room.ID.String()

	body, _ := json.Marshal(PlayRequest{Track: yt("aaaaaaaaaaa")})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, base+"/play", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, base+"/skip", bytes.NewBufferString(`{"if_track_url":"https://elsewhere"}`)))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, base+"/skip", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var res SkipResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, ActionAdvanceQueue, res.Action)
	require.NotNil(t, res.Room)
	assert.Nil(t, res.Room.CurrentTrackURL)
}

func TestSkipForbiddenOverHTTP(t *testing.T) {
	f := newFixture(t)
	dj := uuid.New()
	f.seat(t, dj)
	_, err := f.playback.PlayTrack(f.ctx, f.room.ID, dj, yt("aaaaaaaaaaa"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router(f.playback, uuid.New()).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/rooms/"+f.room.ID.String()+"/skip", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body["code"])
}
