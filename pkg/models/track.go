package models

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/listening-room-system/pkg/apperr"
)

type TrackSource string

const (
	SourceYouTube    TrackSource = "youtube"
	SourceSoundCloud TrackSource = "soundcloud"
	SourceSuno       TrackSource = "suno"
)

func (s TrackSource) Valid() bool {
	switch s {
	case SourceYouTube, SourceSoundCloud, SourceSuno:
		return true
	}
	return false
}

// TrackInfo is immutable once created. VideoID is only set for YouTube.
type TrackInfo struct {
	Source    TrackSource `json:"source"`
	VideoID   string      `json:"video_id,omitempty"`
	TrackURL  string      `json:"track_url"`
	Title     string      `json:"title"`
	Thumbnail string      `json:"thumbnail,omitempty"`
}

func (t TrackInfo) Validate() error {
	if !t.Source.Valid() {
		return fmt.Errorf("%w: unknown track source %q", apperr.ErrInvalidInput, t.Source)
	}
	if strings.TrimSpace(t.TrackURL) == "" {
		return fmt.Errorf("%w: track_url is required", apperr.ErrInvalidInput)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", apperr.ErrInvalidInput)
	}
	if t.VideoID != "" && t.Source != SourceYouTube {
		return fmt.Errorf("%w: video_id is only valid for youtube tracks", apperr.ErrInvalidInput)
	}
	return nil
}

// Key is a source-qualified identifier used to match votes to the playing
// track. Non-YouTube URLs are hashed to keep the key a fixed width.
func (t TrackInfo) Key() string {
	if t.Source == SourceYouTube && t.VideoID != "" {
		return string(t.Source) + ":" + t.VideoID
	}
	sum := sha256.Sum256([]byte(t.TrackURL))
	return string(t.Source) + ":" + hex.EncodeToString(sum[:16])
}

// SameTrack reports whether two tracks are the same recording. Tracks from
// different sources never match, even when their URLs coincide.
func (t TrackInfo) SameTrack(o TrackInfo) bool {
	if t.Source != o.Source {
		return false
	}
	if t.VideoID != "" && o.VideoID != "" {
		return t.VideoID == o.VideoID
	}
	return t.TrackURL == o.TrackURL
}

// TrackList is a DJ's personal song queue, stored as a JSON column.
type TrackList []TrackInfo

func (l TrackList) Value() (driver.Value, error) {
	if l == nil {
		l = TrackList{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *TrackList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = TrackList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("track list: unsupported column type")
	}
	if len(raw) == 0 {
		*l = TrackList{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

// Clone returns a copy that does not share a backing array with l.
func (l TrackList) Clone() TrackList {
	out := make(TrackList, len(l))
	copy(out, l)
	return out
}

// WithoutLeading drops every leading entry identical to current.
func (l TrackList) WithoutLeading(current *TrackInfo) TrackList {
	if current == nil {
		return l
	}
	i := 0
	for i < len(l) && l[i].SameTrack(*current) {
		i++
	}
	return l[i:]
}
