package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/models"
)

var (
	youtubeURL    = regexp.MustCompile(`(?:youtube\.com/watch\?(?:[^#\s]*&)?v=|youtu\.be/|youtube\.com/shorts/)([a-zA-Z0-9_-]{11})`)
	youtubeBareID = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	soundcloudURL = regexp.MustCompile(`(?:on\.soundcloud\.com/[^/\s?#]+|soundcloud\.com/[^/\s?#]+/[^/\s?#]+)`)
	sunoSong      = regexp.MustCompile(`suno\.(?:com|ai)/song/([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)
	sunoShort     = regexp.MustCompile(`suno\.(?:com|ai)/s/[a-zA-Z0-9]+`)
)

const (
	youtubeOEmbed    = "https://www.youtube.com/oembed"
	soundcloudOEmbed = "https://soundcloud.com/oembed"
	sunoCDN          = "https://cdn1.suno.ai/%s.mp3"

	youtubeFallbackTitle = "YouTube Video"
	sunoTitle            = "Suno Track"
	soundcloudTitle      = "SoundCloud Track"
)

// Detection is the result of classifying a pasted URL without any network access.
type Detection struct {
	Source models.TrackSource
	// ID is the YouTube video id or the Suno song uuid.
	ID string
	// URL is the canonical form used for lookups and as the cache key.
	URL string
}

// Detect classifies input by pattern. Suno short links are recognized but
// cannot be resolved without scraping, so they are reported as unresolvable.
func Detect(input string) (Detection, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Detection{}, fmt.Errorf("%w: url is required", apperr.ErrInvalidInput)
	}

	if m := youtubeURL.FindStringSubmatch(input); m != nil {
		return youtubeDetection(m[1]), nil
	}
	if youtubeBareID.MatchString(input) {
		return youtubeDetection(input), nil
	}
	if m := sunoSong.FindStringSubmatch(input); m != nil {
		id := strings.ToLower(m[1])
		return Detection{Source: models.SourceSuno, ID: id, URL: fmt.Sprintf(sunoCDN, id)}, nil
	}
	if sunoShort.MatchString(input) {
		return Detection{}, fmt.Errorf("%w: suno short links are not supported", apperr.ErrUnresolvable)
	}
	if m := soundcloudURL.FindString(input); m != "" {
		return Detection{Source: models.SourceSoundCloud, URL: "https://" + m}, nil
	}
	return Detection{}, fmt.Errorf("%w: unrecognized url", apperr.ErrUnresolvable)
}

func youtubeDetection(id string) Detection {
	return Detection{Source: models.SourceYouTube, ID: id, URL: "https://www.youtube.com/watch?v=" + id}
}

type oEmbedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// trackCache is the subset of *redis.Client the resolver uses.
type trackCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type Client struct {
	httpClient *http.Client
	cache      trackCache
	cacheTTL   time.Duration
}

// NewClient builds a resolver. A nil cache disables result caching.
func NewClient(httpClient *http.Client, cache *redis.Client, cacheTTL time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{httpClient: httpClient, cacheTTL: cacheTTL}
	if cache != nil {
		c.cache = cache
	}
	return c
}

func cacheKey(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return "resolve:" + hex.EncodeToString(sum[:16])
}

// Resolve turns a pasted URL into a playable track.
func (c *Client) Resolve(ctx context.Context, input string) (*models.TrackInfo, error) {
	d, err := Detect(input)
	if err != nil {
		return nil, err
	}

	if cached := c.cached(ctx, d.URL); cached != nil {
		return cached, nil
	}

	var (
		track    *models.TrackInfo
		degraded bool
	)
	switch d.Source {
	case models.SourceYouTube:
		track, degraded = c.resolveYouTube(ctx, d)
	case models.SourceSoundCloud:
		track, err = c.resolveSoundCloud(ctx, d)
	case models.SourceSuno:
		track = &models.TrackInfo{Source: models.SourceSuno, TrackURL: d.URL, Title: sunoTitle}
	}
	if err != nil {
		return nil, err
	}

	if !degraded {
		c.store(ctx, d.URL, track)
	}
	return track, nil
}

// The video id alone is enough to play, so oEmbed failures only cost the
// title. The second result reports that the fallback metadata was used.
func (c *Client) resolveYouTube(ctx context.Context, d Detection) (*models.TrackInfo, bool) {
	track := &models.TrackInfo{
		Source:    models.SourceYouTube,
		VideoID:   d.ID,
		TrackURL:  d.URL,
		Title:     youtubeFallbackTitle,
		Thumbnail: fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", d.ID),
	}

	meta, err := c.oEmbed(ctx, youtubeOEmbed, d.URL)
	if err != nil {
		log.Printf("Warning: youtube oembed lookup for %s failed: %v", d.ID, err)
		return track, true
	}
	if meta.Title != "" {
		track.Title = meta.Title
	}
	if meta.ThumbnailURL != "" {
		track.Thumbnail = meta.ThumbnailURL
	}
	return track, false
}

func (c *Client) resolveSoundCloud(ctx context.Context, d Detection) (*models.TrackInfo, error) {
	meta, err := c.oEmbed(ctx, soundcloudOEmbed, d.URL)
	if err != nil {
		return nil, err
	}
	title := meta.Title
	if title == "" {
		title = soundcloudTitle
	}
	return &models.TrackInfo{
		Source:    models.SourceSoundCloud,
		TrackURL:  d.URL,
		Title:     title,
		Thumbnail: meta.ThumbnailURL,
	}, nil
}

var errNotEmbeddable = errors.New("oembed: not found")

func (c *Client) oEmbed(ctx context.Context, endpoint, target string) (*oEmbedResponse, error) {
	params := url.Values{}
	params.Add("format", "json")
	params.Add("url", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oembed request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %w", apperr.ErrUnresolvable, errNotEmbeddable)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("oembed request failed with status %d", resp.StatusCode)
	}

	var meta oEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode oembed response: %w", err)
	}
	return &meta, nil
}

func (c *Client) cached(ctx context.Context, canonical string) *models.TrackInfo {
	if c.cache == nil {
		return nil
	}
	raw, err := c.cache.Get(ctx, cacheKey(canonical)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("Warning: resolver cache read failed: %v", err)
		}
		return nil
	}
	var track models.TrackInfo
	if err := json.Unmarshal(raw, &track); err != nil {
		return nil
	}
	return &track
}

func (c *Client) store(ctx context.Context, canonical string, track *models.TrackInfo) {
	if c.cache == nil || track == nil {
		return
	}
	raw, err := json.Marshal(track)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(canonical), raw, c.cacheTTL).Err(); err != nil {
		log.Printf("Warning: resolver cache write failed: %v", err)
	}
}
