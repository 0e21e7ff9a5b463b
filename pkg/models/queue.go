package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxSongsPerDJ caps each DJ's personal queue.
const MaxSongsPerDJ = 3

type DJQueueEntry struct {
	ID        uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	RoomID    uuid.UUID `json:"room_id" gorm:"type:char(36);not null;uniqueIndex:idx_dj_queue_room_spot;uniqueIndex:idx_dj_queue_room_user"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:char(36);not null;uniqueIndex:idx_dj_queue_room_user"`
	Spot      int       `json:"spot" gorm:"not null;uniqueIndex:idx_dj_queue_room_spot"`
	Songs     TrackList `json:"songs" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DJQueueEntry) TableName() string {
	return "dj_queue"
}

// LowestFreeSpot returns the lowest spot in 1..MaxSpots not held by entries.
func LowestFreeSpot(entries []DJQueueEntry) (int, bool) {
	taken := make(map[int]bool, len(entries))
	for _, e := range entries {
		taken[e.Spot] = true
	}
	for spot := 1; spot <= MaxSpots; spot++ {
		if !taken[spot] {
			return spot, true
		}
	}
	return 0, false
}

// NextInRotation finds the entry holding the first occupied spot after
// active, wrapping 1→2→3→1. The active spot itself is checked last, so a
// lone DJ who is still seated keeps the decks. A nil active starts at 1.
func NextInRotation(entries []DJQueueEntry, active *int) (*DJQueueEntry, bool) {
	bySpot := make(map[int]*DJQueueEntry, len(entries))
	for i := range entries {
		bySpot[entries[i].Spot] = &entries[i]
	}
	start := 0
	if active != nil {
		start = *active
	}
	for offset := 1; offset <= MaxSpots; offset++ {
		spot := (start+offset-1)%MaxSpots + 1
		if e, ok := bySpot[spot]; ok {
			return e, true
		}
	}
	return nil, false
}
