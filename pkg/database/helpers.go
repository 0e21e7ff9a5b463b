package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/models"
)

// RoomError maps a missing room to apperr.ErrRoomNotFound and wraps
// anything else as an internal failure.
func RoomError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.ErrRoomNotFound
	}
	return fmt.Errorf("failed to load room: %w", err)
}

// IsAdmin reports the user's global admin flag. Unknown users are not admins.
func IsAdmin(ctx context.Context, tx Tx, userID uuid.UUID) (bool, error) {
	user, err := tx.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user: %w", err)
	}
	return user.IsAdmin, nil
}

// CanModerate reports whether userID owns the room or is a global admin.
func CanModerate(ctx context.Context, tx Tx, room *models.Room, userID uuid.UUID) (bool, error) {
	if room.IsOwner(userID) {
		return true, nil
	}
	return IsAdmin(ctx, tx, userID)
}
