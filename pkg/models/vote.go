package models

import (
	"time"

	"github.com/google/uuid"
)

type VoteType string

const (
	VoteAwesome VoteType = "awesome"
	VoteLame    VoteType = "lame"
)

func (v VoteType) Valid() bool {
	return v == VoteAwesome || v == VoteLame
}

// Vote rows are never cleaned up when the track changes; readers must filter
// by the room's current TrackKey.
type Vote struct {
	ID        uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	RoomID    uuid.UUID  `json:"room_id" gorm:"type:char(36);not null;uniqueIndex:idx_votes_room_user_track;index:idx_votes_room_track"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:char(36);not null;uniqueIndex:idx_votes_room_user_track"`
	TrackKey  string     `json:"track_key" gorm:"size:96;not null;uniqueIndex:idx_votes_room_user_track;index:idx_votes_room_track"`
	VoteType  VoteType   `json:"vote_type" gorm:"size:16;not null"`
	DJID      *uuid.UUID `json:"dj_id" gorm:"type:char(36)"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// VoteCounts is the tally for the room's current track.
type VoteCounts struct {
	TrackKey       string    `json:"track_key"`
	Awesome        int       `json:"awesome"`
	Lame           int       `json:"lame"`
	Total          int       `json:"total"`
	AwesomePercent float64   `json:"awesome_percent"`
	LamePercent    float64   `json:"lame_percent"`
	UserVote       *VoteType `json:"user_vote"`
	Listeners      int       `json:"listeners"`
}

// CountVotes tallies votes matching trackKey; rows for any other track are
// ignored.
func CountVotes(votes []Vote, trackKey string, userID uuid.UUID) VoteCounts {
	c := VoteCounts{TrackKey: trackKey}
	if trackKey == "" {
		return c
	}
	for _, v := range votes {
		if v.TrackKey != trackKey {
			continue
		}
		switch v.VoteType {
		case VoteAwesome:
			c.Awesome++
		case VoteLame:
			c.Lame++
		default:
			continue
		}
		if v.UserID == userID {
			vt := v.VoteType
			c.UserVote = &vt
		}
	}
	c.Total = c.Awesome + c.Lame
	if c.Total > 0 {
		c.AwesomePercent = float64(c.Awesome) / float64(c.Total) * 100
		c.LamePercent = float64(c.Lame) / float64(c.Total) * 100
	}
	return c
}

// Minimums for a crowd auto-skip to be attempted by a session.
const (
	AutoSkipMinVotes     = 2
	AutoSkipMinListeners = 2
)

// ShouldAutoSkip reports whether a listening session should fire a crowd skip.
func ShouldAutoSkip(room *Room, counts VoteCounts, userID uuid.UUID) bool {
	if room == nil || room.CurrentTrack() == nil {
		return false
	}
	if room.IsDJ(userID) {
		return false
	}
	if counts.TrackKey != room.CurrentTrackKey() {
		return false
	}
	if counts.Listeners < AutoSkipMinListeners || counts.Total < AutoSkipMinVotes {
		return false
	}
	return counts.LamePercent >= float64(room.LameThreshold)
}
