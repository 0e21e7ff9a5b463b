package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxSpots is the number of fixed DJ spots per room.
const MaxSpots = 3

type User struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Username    string    `json:"username" gorm:"size:64;uniqueIndex"`
	DisplayName string    `json:"display_name"`
	IsAdmin     bool      `json:"is_admin" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PlaybackState is derived from the room row, never stored.
type PlaybackState string

const (
	StateIdle    PlaybackState = "idle"
	StatePicking PlaybackState = "picking"
	StatePlaying PlaybackState = "playing"
)

type Room struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Slug        string    `json:"slug" gorm:"size:64;uniqueIndex"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description *string   `json:"description"`
	OwnerID     uuid.UUID `json:"owner_id" gorm:"type:char(36);index"`

	CurrentDJID           *uuid.UUID   `json:"current_dj_id" gorm:"type:char(36)"`
	ActiveDJSpot          *int         `json:"active_dj_spot"`
	CurrentTrackSource    *TrackSource `json:"current_track_source" gorm:"size:16"`
	CurrentTrackVideoID   *string      `json:"current_track_video_id" gorm:"size:32"`
	CurrentTrackURL       *string      `json:"current_track_url" gorm:"type:text"`
	CurrentTrackTitle     *string      `json:"current_track_title" gorm:"type:text"`
	CurrentTrackThumbnail *string      `json:"current_track_thumbnail" gorm:"type:text"`
	VideoStartedAt        *time.Time   `json:"video_started_at"`
	LastSkippedAt         *time.Time   `json:"last_skipped_at"`

	LameThreshold int       `json:"lame_threshold" gorm:"not null;default:50"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Playback is the set of room columns owned by the playback coordinator.
// It is always written as a unit so the current_track_* columns and
// video_started_at can never be partially null.
type Playback struct {
	DJID      *uuid.UUID
	Spot      *int
	Track     *TrackInfo
	StartedAt *time.Time
}

// Idle is the playback with nobody at the decks.
func Idle() Playback { return Playback{} }

// Picking is an active DJ with nothing playing yet.
func Picking(djID uuid.UUID, spot int) Playback {
	return Playback{DJID: &djID, Spot: &spot}
}

// Playing is an active DJ whose track started at startedAt.
func Playing(djID uuid.UUID, spot *int, track TrackInfo, startedAt time.Time) Playback {
	p := Playback{DJID: &djID, Track: &track, StartedAt: &startedAt}
	if spot != nil {
		s := *spot
		p.Spot = &s
	}
	return p
}

// Playback returns the room's current playback columns.
func (r *Room) Playback() Playback {
	p := Playback{
		DJID:      r.CurrentDJID,
		Spot:      r.ActiveDJSpot,
		StartedAt: r.VideoStartedAt,
	}
	p.Track = r.CurrentTrack()
	return p
}

// ApplyPlayback overwrites every playback column from p.
func (r *Room) ApplyPlayback(p Playback) {
	r.CurrentDJID = p.DJID
	r.ActiveDJSpot = p.Spot
	r.VideoStartedAt = p.StartedAt
	r.CurrentTrackSource = nil
	r.CurrentTrackVideoID = nil
	r.CurrentTrackURL = nil
	r.CurrentTrackTitle = nil
	r.CurrentTrackThumbnail = nil
	if p.Track == nil {
		return
	}
	t := *p.Track
	r.CurrentTrackSource = &t.Source
	r.CurrentTrackURL = &t.TrackURL
	r.CurrentTrackTitle = &t.Title
	if t.VideoID != "" {
		r.CurrentTrackVideoID = &t.VideoID
	}
	if t.Thumbnail != "" {
		r.CurrentTrackThumbnail = &t.Thumbnail
	}
}

// CurrentTrack rebuilds the playing track, or nil when nothing plays.
func (r *Room) CurrentTrack() *TrackInfo {
	if r.CurrentTrackURL == nil || r.VideoStartedAt == nil {
		return nil
	}
	t := TrackInfo{TrackURL: *r.CurrentTrackURL}
	if r.CurrentTrackSource != nil {
		t.Source = *r.CurrentTrackSource
	}
	if r.CurrentTrackTitle != nil {
		t.Title = *r.CurrentTrackTitle
	}
	if r.CurrentTrackVideoID != nil {
		t.VideoID = *r.CurrentTrackVideoID
	}
	if r.CurrentTrackThumbnail != nil {
		t.Thumbnail = *r.CurrentTrackThumbnail
	}
	return &t
}

// CurrentTrackKey identifies the playing track for vote matching, or "".
func (r *Room) CurrentTrackKey() string {
	if t := r.CurrentTrack(); t != nil {
		return t.Key()
	}
	return ""
}

func (r *Room) State() PlaybackState {
	switch {
	case r.CurrentTrack() != nil:
		return StatePlaying
	case r.CurrentDJID != nil:
		return StatePicking
	default:
		return StateIdle
	}
}

func (r *Room) IsDJ(userID uuid.UUID) bool {
	return r.CurrentDJID != nil && *r.CurrentDJID == userID
}

func (r *Room) IsOwner(userID uuid.UUID) bool {
	return r.OwnerID == userID
}

// Snapshot is everything a session needs to re-derive room state.
type Snapshot struct {
	Room  *Room          `json:"room"`
	State PlaybackState  `json:"state"`
	Queue []DJQueueEntry `json:"queue"`
}
