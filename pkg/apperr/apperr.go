package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrCooldownActive   = errors.New("skip cooldown active")
	ErrNoSpotsAvailable = errors.New("no dj spots available")
	ErrAlreadyQueued    = errors.New("already holding a dj spot")
	ErrQueueFull        = errors.New("song queue is full")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNoActiveTrack    = errors.New("no track is playing")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnresolvable     = errors.New("track could not be resolved")
	ErrInternal         = errors.New("internal error")
)

type kind struct {
	err    error
	code   string
	status int
}

// Order matters only for errors wrapping more than one sentinel; the first match wins.
var kinds = []kind{
	{ErrUnauthorized, "unauthorized", http.StatusUnauthorized},
	{ErrForbidden, "forbidden", http.StatusForbidden},
	{ErrCooldownActive, "cooldown_active", http.StatusTooManyRequests},
	{ErrNoSpotsAvailable, "no_spots_available", http.StatusConflict},
	{ErrAlreadyQueued, "already_queued", http.StatusConflict},
	{ErrQueueFull, "queue_full", http.StatusUnprocessableEntity},
	{ErrRoomNotFound, "room_not_found", http.StatusNotFound},
	{ErrNoActiveTrack, "no_active_track", http.StatusConflict},
	{ErrInvalidInput, "invalid_input", http.StatusBadRequest},
	{ErrUnresolvable, "unresolvable", http.StatusUnprocessableEntity},
}

func lookup(err error) (kind, bool) {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k, true
		}
	}
	return kind{}, false
}

// Status returns the HTTP status for err. Unclassified errors are 500.
func Status(err error) int {
	if k, ok := lookup(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// Code returns the stable wire code for err. Unclassified errors are "internal".
func Code(err error) string {
	if k, ok := lookup(err); ok {
		return k.code
	}
	return "internal"
}

// Message returns a user-facing message. Internal errors are masked.
func Message(err error) string {
	if _, ok := lookup(err); ok {
		return err.Error()
	}
	return ErrInternal.Error()
}

// IsInternal reports whether err falls outside the typed taxonomy.
func IsInternal(err error) bool {
	_, ok := lookup(err)
	return !ok
}

// FromCode maps a wire code back to its sentinel, or ErrInternal.
func FromCode(code string) error {
	for _, k := range kinds {
		if k.code == code {
			return k.err
		}
	}
	return ErrInternal
}
