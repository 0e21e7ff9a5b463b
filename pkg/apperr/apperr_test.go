package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"forbidden", fmt.Errorf("%w: only the dj may skip", ErrForbidden), http.StatusForbidden, "forbidden"},
		{"cooldown", ErrCooldownActive, http.StatusTooManyRequests, "cooldown_active"},
		{"no spots", ErrNoSpotsAvailable, http.StatusConflict, "no_spots_available"},
		{"queue full", fmt.Errorf("wrapped twice: %w", fmt.Errorf("%w: 4 > 3", ErrQueueFull)), http.StatusUnprocessableEntity, "queue_full"},
		{"room not found", ErrRoomNotFound, http.StatusNotFound, "room_not_found"},
		{"store failure", errors.New("connection reset"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, Status(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestMessageMasksInternal(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("dial tcp 10.0.0.3:3306: refused")))
	assert.Equal(t, "no track is playing", Message(ErrNoActiveTrack))
	assert.True(t, IsInternal(errors.New("boom")))
	assert.False(t, IsInternal(ErrForbidden))
}

func TestFromCodeRoundTrip(t *testing.T) {
	for _, k := range kinds {
		assert.ErrorIs(t, FromCode(Code(k.err)), k.err)
	}
	assert.ErrorIs(t, FromCode("something_new"), ErrInternal)
}
