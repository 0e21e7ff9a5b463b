package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yt(id string) TrackInfo {
	return TrackInfo{Source: SourceYouTube, VideoID: id, TrackURL: "https://www.youtube.com/watch?v=" + id, Title: "yt " + id}
}

func TestApplyPlaybackAllOrNothing(t *testing.T) {
	dj := uuid.New()
	spot := 2
	r := &Room{}

	r.ApplyPlayback(Playing(dj, &spot, yt("aaaaaaaaaaa"), time.Now()))
	require.NotNil(t, r.CurrentTrackURL)
	require.NotNil(t, r.CurrentTrackTitle)
	require.NotNil(t, r.VideoStartedAt)
	assert.Equal(t, StatePlaying, r.State())
	assert.Nil(t, r.CurrentTrackThumbnail)

	r.ApplyPlayback(Picking(dj, spot))
	assert.Nil(t, r.CurrentTrackURL)
	assert.Nil(t, r.CurrentTrackTitle)
	assert.Nil(t, r.CurrentTrackSource)
	assert.Nil(t, r.CurrentTrackVideoID)
	assert.Nil(t, r.VideoStartedAt)
	assert.Equal(t, StatePicking, r.State())

	r.ApplyPlayback(Idle())
	assert.Nil(t, r.CurrentDJID)
	assert.Nil(t, r.ActiveDJSpot)
	assert.Equal(t, StateIdle, r.State())
}

func TestTrackValidate(t *testing.T) {
	assert.NoError(t, yt("abcdefghijk").Validate())

	bad := []TrackInfo{
		{Source: "bandcamp", TrackURL: "https://x", Title: "x"},
		{Source: SourceSuno, TrackURL: " ", Title: "x"},
		{Source: SourceSoundCloud, TrackURL: "https://soundcloud.com/a/b", Title: ""},
		{Source: SourceSoundCloud, VideoID: "abcdefghijk", TrackURL: "https://soundcloud.com/a/b", Title: "x"},
	}
	for _, tr := range bad {
		assert.Error(t, tr.Validate(), "%+v", tr)
	}
}

func TestTrackKeyAndSameTrack(t *testing.T) {
	a := yt("abcdefghijk")
	assert.Equal(t, "youtube:abcdefghijk", a.Key())

	sc := TrackInfo{Source: SourceSoundCloud, TrackURL: "https://soundcloud.com/a/b", Title: "b"}
	assert.Len(t, sc.Key(), len("soundcloud:")+32)
	assert.Equal(t, sc.Key(), TrackInfo{Source: SourceSoundCloud, TrackURL: sc.TrackURL, Title: "other title"}.Key())

	sameURLOtherSource := TrackInfo{Source: SourceSuno, TrackURL: sc.TrackURL, Title: "b"}
	assert.False(t, sc.SameTrack(sameURLOtherSource))

	shortLink := TrackInfo{Source: SourceYouTube, VideoID: "abcdefghijk", TrackURL: "https://youtu.be/abcdefghijk", Title: "x"}
	assert.True(t, a.SameTrack(shortLink))
}

func TestWithoutLeading(t *testing.T) {
	a, b := yt("aaaaaaaaaaa"), yt("bbbbbbbbbbb")

	assert.Equal(t, TrackList{b}, TrackList{a, a, b}.WithoutLeading(&a))
	assert.Equal(t, TrackList{b, a}, TrackList{b, a}.WithoutLeading(&a))
	assert.Equal(t, TrackList{a}, TrackList{a}.WithoutLeading(nil))
	assert.Empty(t, TrackList{a}.WithoutLeading(&a))
}

func TestTrackListScan(t *testing.T) {
	var l TrackList
	require.NoError(t, l.Scan([]byte(`[{"source":"suno","track_url":"https://cdn1.suno.ai/x.mp3","title":"Suno Track"}]`)))
	require.Len(t, l, 1)
	assert.Equal(t, SourceSuno, l[0].Source)

	require.NoError(t, l.Scan(nil))
	assert.Empty(t, l)

	v, err := TrackList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestLowestFreeSpot(t *testing.T) {
	spot, ok := LowestFreeSpot(nil)
	assert.True(t, ok)
	assert.Equal(t, 1, spot)

	spot, ok = LowestFreeSpot([]DJQueueEntry{{Spot: 1}, {Spot: 3}})
	assert.True(t, ok)
	assert.Equal(t, 2, spot)

	_, ok = LowestFreeSpot([]DJQueueEntry{{Spot: 1}, {Spot: 2}, {Spot: 3}})
	assert.False(t, ok)
}

func TestNextInRotation(t *testing.T) {
	one, two, three := 1, 2, 3
	tests := []struct {
		name   string
		spots  []int
		active *int
		want   int
	}{
		{"after 1 finds 2", []int{1, 2}, &one, 2},
		{"after 2 skips empty 3 and wraps", []int{1, 2}, &two, 1},
		{"after 3 wraps to 1", []int{1, 3}, &three, 1},
		{"departed dj leaves one other", []int{3}, &one, 3},
		{"lone seated dj keeps the decks", []int{2}, &two, 2},
		{"no active spot starts at 1", []int{2, 3}, nil, 2},
		{"empty roster", nil, &one, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entries []DJQueueEntry
			for _, s := range tt.spots {
				entries = append(entries, DJQueueEntry{Spot: s})
			}
			next, ok := NextInRotation(entries, tt.active)
			if tt.want == 0 {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, next.Spot)
		})
	}
}

func TestCountVotesIgnoresStaleTrack(t *testing.T) {
	me, other, third := uuid.New(), uuid.New(), uuid.New()
	current := yt("ccccccccccc").Key()
	stale := yt("sssssssssss").Key()
	votes := []Vote{
		{UserID: me, TrackKey: current, VoteType: VoteLame},
		{UserID: other, TrackKey: current, VoteType: VoteAwesome},
		{UserID: third, TrackKey: current, VoteType: VoteLame},
		{UserID: third, TrackKey: stale, VoteType: VoteAwesome},
	}

	c := CountVotes(votes, current, me)
	assert.Equal(t, 2, c.Lame)
	assert.Equal(t, 1, c.Awesome)
	assert.Equal(t, 3, c.Total)
	assert.InDelta(t, 66.67, c.LamePercent, 0.01)
	require.NotNil(t, c.UserVote)
	assert.Equal(t, VoteLame, *c.UserVote)

	assert.Zero(t, CountVotes(votes, "", me).Total)
}

func TestShouldAutoSkip(t *testing.T) {
	dj, listener := uuid.New(), uuid.New()
	track := yt("ccccccccccc")
	spot := 1
	room := &Room{LameThreshold: 50}
	room.ApplyPlayback(Playing(dj, &spot, track, time.Now()))

	base := VoteCounts{TrackKey: track.Key(), Lame: 2, Total: 2, LamePercent: 100, Listeners: 3}
	assert.True(t, ShouldAutoSkip(room, base, listener))
	assert.False(t, ShouldAutoSkip(room, base, dj), "the active dj never auto-skips")

	few := base
	few.Total, few.Lame = 1, 1
	assert.False(t, ShouldAutoSkip(room, few, listener))

	alone := base
	alone.Listeners = 1
	assert.False(t, ShouldAutoSkip(room, alone, listener))

	below := base
	below.LamePercent = 49.9
	assert.False(t, ShouldAutoSkip(room, below, listener))

	stale := base
	stale.TrackKey = yt("ddddddddddd").Key()
	assert.False(t, ShouldAutoSkip(room, stale, listener))

	room.ApplyPlayback(Picking(dj, spot))
	assert.False(t, ShouldAutoSkip(room, base, listener))
}
