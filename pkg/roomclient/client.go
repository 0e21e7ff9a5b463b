package roomclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/listening-room-system/pkg/apperr"
	"github.com/listening-room-system/pkg/models"
)

// APIError is a failed API call. It unwraps to the matching apperr sentinel,
// so callers can use errors.Is(err, apperr.ErrCooldownActive).
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

func (e *APIError) Unwrap() error {
	return apperr.FromCode(e.Code)
}

type ClaimResult struct {
	Entry     *models.DJQueueEntry `json:"entry"`
	Activated bool                 `json:"activated"`
}

type LeaveResult struct {
	Removed     bool         `json:"removed"`
	WasActiveDJ bool         `json:"was_active_dj"`
	Room        *models.Room `json:"room,omitempty"`
}

type SkipResult struct {
	Action string       `json:"action"`
	Room   *models.Room `json:"room"`
}

// Client calls the room API with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New builds a client for baseURL, e.g. "http://localhost:8080/api/v1".
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Code: "internal", Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			if payload.Code != "" {
				apiErr.Code = payload.Code
			}
			if payload.Error != "" {
				apiErr.Message = payload.Error
			}
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func roomPath(roomID uuid.UUID, suffix string) string {
	return "/rooms/" + roomID.String() + suffix
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var resp struct {
		User *models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) CreateRoom(ctx context.Context, name string, lameThreshold *int) (*models.Room, error) {
	body := map[string]any{"name": name}
	if lameThreshold != nil {
		body["lame_threshold"] = *lameThreshold
	}
	var room models.Room
	if err := c.do(ctx, http.MethodPost, "/rooms", body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) Snapshot(ctx context.Context, roomID uuid.UUID) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "/snapshot"), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Tally(ctx context.Context, roomID uuid.UUID) (*models.VoteCounts, error) {
	var counts models.VoteCounts
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "/votes"), nil, &counts); err != nil {
		return nil, err
	}
	return &counts, nil
}

func (c *Client) Vote(ctx context.Context, roomID uuid.UUID, voteType models.VoteType) (*models.VoteCounts, error) {
	var counts models.VoteCounts
	body := map[string]any{"vote_type": voteType}
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "/votes"), body, &counts); err != nil {
		return nil, err
	}
	return &counts, nil
}

func (c *Client) ClaimSpot(ctx context.Context, roomID uuid.UUID) (*ClaimResult, error) {
	var result ClaimResult
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "/queue"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) LeaveSpot(ctx context.Context, roomID uuid.UUID) (*LeaveResult, error) {
	var result LeaveResult
	if err := c.do(ctx, http.MethodDelete, roomPath(roomID, "/queue"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateSongs(ctx context.Context, roomID uuid.UUID, songs []models.TrackInfo) (*models.DJQueueEntry, error) {
	if songs == nil {
		songs = []models.TrackInfo{}
	}
	var entry models.DJQueueEntry
	body := map[string]any{"songs": songs}
	if err := c.do(ctx, http.MethodPut, roomPath(roomID, "/queue/songs"), body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Client) Play(ctx context.Context, roomID uuid.UUID, track models.TrackInfo) (*models.Room, error) {
	var room models.Room
	body := map[string]any{"track": track}
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "/play"), body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Skip asks the server to skip. A non-empty ifTrackURL makes the skip a
// no-op (CooldownActive) when that track is no longer playing.
func (c *Client) Skip(ctx context.Context, roomID uuid.UUID, ifTrackURL string) (*SkipResult, error) {
	var body any
	if ifTrackURL != "" {
		body = map[string]string{"if_track_url": ifTrackURL}
	}
	var result SkipResult
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "/skip"), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Heartbeat(ctx context.Context, roomID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, roomPath(roomID, "/heartbeat"), nil, nil)
}

func (c *Client) Resolve(ctx context.Context, trackURL string) (*models.TrackInfo, error) {
	var resp struct {
		Track *models.TrackInfo `json:"track"`
	}
	if err := c.do(ctx, http.MethodGet, "/resolve?url="+url.QueryEscape(trackURL), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Track, nil
}

// WebSocketURL is the change-feed endpoint for roomID with the token in the
// query string.
func (c *Client) WebSocketURL(roomID uuid.UUID) (string, error) {
	u, err := url.Parse(c.baseURL + "/ws/" + roomID.String())
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
