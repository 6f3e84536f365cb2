// Package egress talks to the media egress service that records and relays the
// composited program feed, and to the room's track inventory.
package egress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TrackKind classifies a published media track in a room.
type TrackKind string

const (
	TrackCompositeVideo TrackKind = "composite_video"
	TrackMixedAudio     TrackKind = "mixed_audio"
	TrackCameraVideo    TrackKind = "camera_video"
)

// Track is one published track in the studio room.
type Track struct {
	ID   string    `json:"id"`
	Kind TrackKind `json:"kind"`
}

// TrackProvider lists the tracks currently published in a room. A broadcast can
// only start once the composited video and mixed audio tracks exist.
type TrackProvider interface {
	ListTracks(ctx context.Context, roomID string) ([]Track, error)
}

// StartRequest describes one composite egress job.
type StartRequest struct {
	RoomID       string   `json:"room_id"`
	VideoTrackID string   `json:"video_track_id"`
	AudioTrackID string   `json:"audio_track_id"`
	IngestURLs   []string `json:"ingest_urls"`
	SegmentPath  string   `json:"segment_path"`
	SnapshotPath string   `json:"snapshot_path"`
}

// Client starts and stops egress jobs. Implemented over HTTP in production and
// by an httptest server in tests.
type Client interface {
	StartComposite(ctx context.Context, req StartRequest) (string, error)
	Stop(ctx context.Context, egressID string) error
}

// HTTPClient is the egress service client.
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPClient builds a client against the given egress service base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// StartComposite starts a composite egress job and returns the job id.
func (c *HTTPClient) StartComposite(ctx context.Context, sr StartRequest) (string, error) {
	if sr.RoomID == "" {
		return "", fmt.Errorf("room id empty")
	}
	if sr.VideoTrackID == "" || sr.AudioTrackID == "" {
		return "", fmt.Errorf("composite egress requires video and audio track ids")
	}
	payload, err := json.Marshal(sr)
	if err != nil {
		return "", fmt.Errorf("marshal start request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/egress/composite", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return "", fmt.Errorf("egress start request failed: %w", err)
	}
	defer closeBody(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("egress start returned %d: %s", resp.StatusCode, string(b))
	}
	var body struct {
		EgressID string `json:"egress_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode egress start response: %w", err)
	}
	if body.EgressID == "" {
		return "", fmt.Errorf("egress start response missing egress_id")
	}
	return body.EgressID, nil
}

// Stop asks the egress service to end a running job. Stopping an already
// finished job is not an error.
func (c *HTTPClient) Stop(ctx context.Context, egressID string) error {
	if egressID == "" {
		return fmt.Errorf("egress id empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/egress/"+egressID+"/stop", nil)
	if err != nil {
		return err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("egress stop request failed: %w", err)
	}
	defer closeBody(resp.Body)
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusConflict:
		// Conflict means the job already ended; stop stays idempotent.
		return nil
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("egress stop returned %d: %s", resp.StatusCode, string(b))
	}
}

// HTTPTrackProvider lists room tracks from the media service.
type HTTPTrackProvider struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (p *HTTPTrackProvider) http() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

// ListTracks returns the tracks published in the room.
func (p *HTTPTrackProvider) ListTracks(ctx context.Context, roomID string) ([]Track, error) {
	if roomID == "" {
		return nil, fmt.Errorf("room id empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/v1/rooms/"+roomID+"/tracks", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("list tracks request failed: %w", err)
	}
	defer closeBody(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list tracks returned %d", resp.StatusCode)
	}
	var body struct {
		Tracks []Track `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode tracks response: %w", err)
	}
	return body.Tracks, nil
}

// FindTrack returns the first track of the given kind, or false.
func FindTrack(tracks []Track, kind TrackKind) (Track, bool) {
	for _, t := range tracks {
		if t.Kind == kind {
			return t, true
		}
	}
	return Track{}, false
}

func closeBody(b io.Closer) {
	if err := b.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
