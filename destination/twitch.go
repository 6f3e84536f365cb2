package destination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/onairlab/studio-core/config"
	"github.com/onairlab/studio-core/crypto"
)

// TwitchAdapter provisions ingest for a linked Twitch channel. Twitch has no
// broadcast lifecycle API; the channel goes live when bytes hit the ingest, so
// CreateBroadcast only resolves the channel's stream key and Finalize is a
// no-op.
type TwitchAdapter struct {
	ClientID     string
	ClientSecret string
	IngestBase   string
	APIBase      string // overridable in tests; defaults to Helix
	AuthBase     string
	HTTPClient   *http.Client
}

// NewTwitchAdapter builds the adapter from app configuration.
func NewTwitchAdapter(cfg *config.Config) *TwitchAdapter {
	return &TwitchAdapter{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		IngestBase:   cfg.TwitchIngestURL,
	}
}

func (a *TwitchAdapter) Provider() Provider { return ProviderTwitch }

func (a *TwitchAdapter) http() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

func (a *TwitchAdapter) apiBase() string {
	if a.APIBase != "" {
		return a.APIBase
	}
	return "https://api.twitch.tv/helix"
}

func (a *TwitchAdapter) authBase() string {
	if a.AuthBase != "" {
		return a.AuthBase
	}
	return "https://id.twitch.tv"
}

// CreateBroadcast resolves the channel's stream key into a full ingest URL.
// The chat id is the channel login, which the IRC recorder joins directly.
func (a *TwitchAdapter) CreateBroadcast(ctx context.Context, creds crypto.Credentials, _ BroadcastParams) (ExternalBroadcast, error) {
	if creds.AccessToken == "" {
		return ExternalBroadcast{}, errors.New("twitch destination has no stored token")
	}
	user, err := a.currentUser(ctx, creds.AccessToken)
	if err != nil {
		return ExternalBroadcast{}, err
	}
	key, err := a.streamKey(ctx, creds.AccessToken, user.ID)
	if err != nil {
		return ExternalBroadcast{}, err
	}
	return ExternalBroadcast{
		IngestURL: strings.TrimSuffix(a.IngestBase, "/") + "/" + key,
		ChatID:    user.Login,
		WatchURL:  "https://www.twitch.tv/" + user.Login,
	}, nil
}

// Finalize is a no-op: the channel ends when the ingest stops.
func (a *TwitchAdapter) Finalize(ctx context.Context, _ crypto.Credentials, _ ExternalBroadcast) error {
	return nil
}

type twitchUser struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// CurrentUser resolves the account behind an access token. Used both during
// account linking and when provisioning ingest.
func (a *TwitchAdapter) CurrentUser(ctx context.Context, accessToken string) (id, login, displayName string, err error) {
	u, err := a.currentUser(ctx, accessToken)
	if err != nil {
		return "", "", "", err
	}
	return u.ID, u.Login, u.DisplayName, nil
}

func (a *TwitchAdapter) currentUser(ctx context.Context, accessToken string) (twitchUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBase()+"/users", nil)
	if err != nil {
		return twitchUser{}, err
	}
	req.Header.Set("Client-Id", a.ClientID)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := a.http().Do(req)
	if err != nil {
		return twitchUser{}, fmt.Errorf("twitch users request failed: %w", err)
	}
	defer closeBody(resp.Body)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return twitchUser{}, fmt.Errorf("twitch users returned %d: %s", resp.StatusCode, string(b))
	}
	var body struct {
		Data []twitchUser `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return twitchUser{}, err
	}
	if len(body.Data) == 0 {
		return twitchUser{}, errors.New("twitch token resolves to no user")
	}
	return body.Data[0], nil
}

func (a *TwitchAdapter) streamKey(ctx context.Context, accessToken, broadcasterID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBase()+"/streams/key", nil)
	if err != nil {
		return "", err
	}
	q := req.URL.Query()
	q.Set("broadcaster_id", broadcasterID)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", a.ClientID)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := a.http().Do(req)
	if err != nil {
		return "", fmt.Errorf("twitch stream key request failed: %w", err)
	}
	defer closeBody(resp.Body)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("twitch stream key returned %d: %s", resp.StatusCode, string(b))
	}
	var body struct {
		Data []struct {
			StreamKey string `json:"stream_key"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 || body.Data[0].StreamKey == "" {
		return "", errors.New("twitch returned no stream key")
	}
	return body.Data[0].StreamKey, nil
}

// AuthorizeURL builds the user authorization URL for the account-link flow.
func (a *TwitchAdapter) AuthorizeURL(redirectURI, scopes, state string) (string, error) {
	if a.ClientID == "" || redirectURI == "" {
		return "", errors.New("missing clientID or redirectURI")
	}
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", a.ClientID)
	v.Set("redirect_uri", redirectURI)
	if scopes != "" {
		v.Set("scope", strings.TrimSpace(strings.ReplaceAll(scopes, ",", " ")))
	}
	if state != "" {
		v.Set("state", state)
	}
	return a.authBase() + "/oauth2/authorize?" + v.Encode(), nil
}

// TokenResult is the response of an authorization code or refresh grant.
type TokenResult struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	Scope        []string `json:"scope"`
	ExpiresIn    int      `json:"expires_in"`
}

// ExchangeAuthCode exchanges an authorization code for access and refresh tokens.
func (a *TwitchAdapter) ExchangeAuthCode(ctx context.Context, code, redirectURI string) (*TokenResult, error) {
	if a.ClientID == "" || a.ClientSecret == "" || code == "" || redirectURI == "" {
		return nil, errors.New("missing required parameter for auth code exchange")
	}
	form := url.Values{}
	form.Set("client_id", a.ClientID)
	form.Set("client_secret", a.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)
	return a.tokenGrant(ctx, form)
}

// RefreshToken performs a refresh_token grant.
func (a *TwitchAdapter) RefreshToken(ctx context.Context, refreshToken string) (*TokenResult, error) {
	if a.ClientID == "" || a.ClientSecret == "" || refreshToken == "" {
		return nil, errors.New("missing required parameter for token refresh")
	}
	form := url.Values{}
	form.Set("client_id", a.ClientID)
	form.Set("client_secret", a.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return a.tokenGrant(ctx, form)
}

func (a *TwitchAdapter) tokenGrant(ctx context.Context, form url.Values) (*TokenResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authBase()+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("twitch token grant failed: %s: %s", resp.Status, string(b))
	}
	var res TokenResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	if res.AccessToken == "" {
		return nil, errors.New("twitch token grant returned empty access token")
	}
	return &res, nil
}

func closeBody(b io.Closer) {
	if err := b.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
