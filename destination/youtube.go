package destination

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onairlab/studio-core/config"
	"github.com/onairlab/studio-core/crypto"
)

// YouTubeAdapter drives the managed broadcast lifecycle on YouTube Live:
// create a liveBroadcast and liveStream, bind them, and transition the
// broadcast to complete on finalize.
type YouTubeAdapter struct {
	oauth *oauth2.Config
}

// NewYouTubeAdapter builds the adapter from app OAuth credentials.
func NewYouTubeAdapter(cfg *config.Config) *YouTubeAdapter {
	scopes := []string{"https://www.googleapis.com/auth/youtube"}
	if cfg.YTScopes != "" {
		s := strings.ReplaceAll(cfg.YTScopes, ",", " ")
		if fields := strings.Fields(s); len(fields) > 0 {
			scopes = fields
		}
	}
	return &YouTubeAdapter{oauth: &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.YTRedirectURI,
		Scopes:       scopes,
	}}
}

func (a *YouTubeAdapter) Provider() Provider { return ProviderYouTube }

// OAuthConfig exposes the underlying config for the account-link flow.
func (a *YouTubeAdapter) OAuthConfig() *oauth2.Config { return a.oauth }

// Service builds an authenticated YouTube API client from stored credentials.
// The oauth2 transport refreshes the access token transparently when expired.
func (a *YouTubeAdapter) Service(ctx context.Context, creds crypto.Credentials) (*yt.Service, error) {
	if creds.RefreshToken == "" && creds.AccessToken == "" {
		return nil, fmt.Errorf("youtube destination has no stored token")
	}
	tok := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
	}
	return yt.New(a.oauth.Client(ctx, tok))
}

// CreateBroadcast provisions a broadcast plus an ingest stream and binds them.
func (a *YouTubeAdapter) CreateBroadcast(ctx context.Context, creds crypto.Credentials, p BroadcastParams) (ExternalBroadcast, error) {
	svc, err := a.Service(ctx, creds)
	if err != nil {
		return ExternalBroadcast{}, err
	}

	start := p.ScheduledFor
	if start.IsZero() {
		start = time.Now().UTC()
	}
	broadcast := &yt.LiveBroadcast{
		Snippet: &yt.LiveBroadcastSnippet{
			Title:              p.Title,
			Description:        p.Description,
			ScheduledStartTime: start.Format(time.RFC3339),
		},
		Status: &yt.LiveBroadcastStatus{PrivacyStatus: "public"},
		ContentDetails: &yt.LiveBroadcastContentDetails{
			EnableAutoStart: true,
			EnableAutoStop:  true,
		},
	}
	b, err := svc.LiveBroadcasts.Insert([]string{"snippet", "status", "contentDetails"}, broadcast).Context(ctx).Do()
	if err != nil {
		return ExternalBroadcast{}, fmt.Errorf("youtube broadcast insert: %w", err)
	}

	stream := &yt.LiveStream{
		Snippet: &yt.LiveStreamSnippet{Title: p.Title},
		Cdn: &yt.CdnSettings{
			FrameRate:     "variable",
			IngestionType: "rtmp",
			Resolution:    "variable",
		},
	}
	s, err := svc.LiveStreams.Insert([]string{"snippet", "cdn"}, stream).Context(ctx).Do()
	if err != nil {
		return ExternalBroadcast{}, fmt.Errorf("youtube stream insert: %w", err)
	}

	if _, err := svc.LiveBroadcasts.Bind(b.Id, []string{"id"}).StreamId(s.Id).Context(ctx).Do(); err != nil {
		return ExternalBroadcast{}, fmt.Errorf("youtube broadcast bind: %w", err)
	}

	ingest := ""
	if s.Cdn != nil && s.Cdn.IngestionInfo != nil {
		ingest = s.Cdn.IngestionInfo.IngestionAddress + "/" + s.Cdn.IngestionInfo.StreamName
	}
	if ingest == "" {
		return ExternalBroadcast{}, fmt.Errorf("youtube stream %s has no ingestion info", s.Id)
	}
	chatID := ""
	if b.Snippet != nil {
		chatID = b.Snippet.LiveChatId
	}
	return ExternalBroadcast{
		IngestURL:   ingest,
		BroadcastID: b.Id,
		StreamID:    s.Id,
		ChatID:      chatID,
		WatchURL:    "https://www.youtube.com/watch?v=" + b.Id,
	}, nil
}

// Finalize transitions the broadcast to complete and deletes the bound stream.
func (a *YouTubeAdapter) Finalize(ctx context.Context, creds crypto.Credentials, eb ExternalBroadcast) error {
	svc, err := a.Service(ctx, creds)
	if err != nil {
		return err
	}
	if _, err := svc.LiveBroadcasts.Transition("complete", eb.BroadcastID, []string{"status"}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("youtube broadcast transition: %w", err)
	}
	if eb.StreamID != "" {
		if err := svc.LiveStreams.Delete(eb.StreamID).Context(ctx).Do(); err != nil {
			return fmt.Errorf("youtube stream delete: %w", err)
		}
	}
	return nil
}
