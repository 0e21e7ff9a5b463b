package models

import (
	"time"

	"github.com/google/uuid"
)

// SongHistoryEntry is append-only.
type SongHistoryEntry struct {
	ID             uuid.UUID   `json:"id" gorm:"type:char(36);primaryKey"`
	RoomID         uuid.UUID   `json:"room_id" gorm:"type:char(36);not null;index:idx_history_room_played"`
	PlayedByUserID uuid.UUID   `json:"played_by_user_id" gorm:"type:char(36);not null"`
	TrackURL       string      `json:"track_url" gorm:"type:text;not null"`
	TrackTitle     string      `json:"track_title" gorm:"type:text;not null"`
	TrackSource    TrackSource `json:"track_source" gorm:"size:16;not null"`
	PlayedAt       time.Time   `json:"played_at" gorm:"not null;index:idx_history_room_played"`
}

func (SongHistoryEntry) TableName() string {
	return "song_history"
}

func NewHistoryEntry(roomID, userID uuid.UUID, t TrackInfo, at time.Time) *SongHistoryEntry {
	return &SongHistoryEntry{
		ID:             uuid.New(),
		RoomID:         roomID,
		PlayedByUserID: userID,
		TrackURL:       t.TrackURL,
		TrackTitle:     t.Title,
		TrackSource:    t.Source,
		PlayedAt:       at,
	}
}
