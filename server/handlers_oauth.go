package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/onairlab/studio-core/crypto"
	"github.com/onairlab/studio-core/destination"
)

// HandleTwitchOAuthStart initiates the Twitch account-link flow by
// redirecting to Twitch.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	cfg := h.deps.Cfg
	if cfg.TwitchClientID == "" || cfg.TwitchRedirectURI == "" {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	profileID := r.URL.Query().Get("profile_id")
	if profileID == "" {
		http.Error(w, "profile_id required", http.StatusBadRequest)
		return
	}
	st, err := newStateToken()
	if err != nil {
		http.Error(w, "state gen error", 500)
		return
	}
	h.addOAuthState(st, profileID, time.Now().Add(10*time.Minute))
	authURL, err := h.deps.Twitch.AuthorizeURL(cfg.TwitchRedirectURI, cfg.TwitchScopes, st)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleTwitchOAuthCallback exchanges the code, resolves the channel identity
// and links the destination. An already linked account is a benign result.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	cfg := h.deps.Cfg
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", 400)
		return
	}
	profileID, ok := h.consumeOAuthState(st)
	if !ok {
		http.Error(w, "invalid state", 400)
		return
	}
	ctx := r.Context()
	res, err := h.deps.Twitch.ExchangeAuthCode(ctx, code, cfg.TwitchRedirectURI)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	id, login, displayName, err := h.deps.Twitch.CurrentUser(ctx, res.AccessToken)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	d, err := h.deps.Destinations.Link(ctx, destination.Destination{
		ProfileID:   profileID,
		Provider:    destination.ProviderTwitch,
		ExternalID:  id,
		DisplayName: displayName,
	}, crypto.Credentials{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(res.ExpiresIn) * time.Second),
		Scopes:       strings.Join(res.Scope, " "),
	})
	if errors.Is(err, destination.ErrAlreadyLinked) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_linked", "login": login})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "linked", "destination": d})
}

// HandleYouTubeOAuthStart initiates the YouTube account-link flow.
func (h *Handlers) HandleYouTubeOAuthStart(w http.ResponseWriter, r *http.Request) {
	cfg := h.deps.Cfg
	if cfg.YTClientID == "" || cfg.YTRedirectURI == "" {
		http.Error(w, "youtube oauth not configured", 400)
		return
	}
	profileID := r.URL.Query().Get("profile_id")
	if profileID == "" {
		http.Error(w, "profile_id required", http.StatusBadRequest)
		return
	}
	st, err := newStateToken()
	if err != nil {
		http.Error(w, "state gen error", 500)
		return
	}
	h.addOAuthState(st, profileID, time.Now().Add(10*time.Minute))
	authURL := h.deps.YouTube.OAuthConfig().AuthCodeURL(st, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleYouTubeOAuthCallback exchanges the code, resolves the channel and
// links the destination with sealed credentials.
func (h *Handlers) HandleYouTubeOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", 400)
		return
	}
	profileID, ok := h.consumeOAuthState(st)
	if !ok {
		http.Error(w, "invalid state", 400)
		return
	}
	ctx := r.Context()
	tok, err := h.deps.YouTube.OAuthConfig().Exchange(ctx, code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	creds := crypto.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	channelID, channelTitle, err := h.youtubeChannelIdentity(r, creds)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	d, err := h.deps.Destinations.Link(ctx, destination.Destination{
		ProfileID:   profileID,
		Provider:    destination.ProviderYouTube,
		ExternalID:  channelID,
		DisplayName: channelTitle,
	}, creds)
	if errors.Is(err, destination.ErrAlreadyLinked) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_linked", "channel": channelTitle})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "linked", "destination": d})
}

func (h *Handlers) youtubeChannelIdentity(r *http.Request, creds crypto.Credentials) (id, title string, err error) {
	svc, err := h.deps.YouTube.Service(r.Context(), creds)
	if err != nil {
		return "", "", err
	}
	resp, err := svc.Channels.List([]string{"id", "snippet"}).Mine(true).Context(r.Context()).Do()
	if err != nil {
		return "", "", err
	}
	if len(resp.Items) == 0 {
		return "", "", errors.New("token resolves to no youtube channel")
	}
	ch := resp.Items[0]
	if ch.Snippet != nil {
		title = ch.Snippet.Title
	}
	return ch.Id, title, nil
}

// HandleRTMPLink creates a raw RTMP destination from a user supplied ingest
// URL (POST /destinations).
func (h *Handlers) HandleRTMPLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProfileID   string `json:"profile_id"`
		DisplayName string `json:"display_name"`
		IngestURL   string `json:"ingest_url"`
		StreamKey   string `json:"stream_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ProfileID == "" || req.IngestURL == "" {
		http.Error(w, "profile_id and ingest_url required", http.StatusBadRequest)
		return
	}
	d, err := h.deps.Destinations.Link(r.Context(), destination.Destination{
		ProfileID:   req.ProfileID,
		Provider:    destination.ProviderRTMP,
		ExternalID:  req.IngestURL,
		DisplayName: req.DisplayName,
	}, crypto.Credentials{IngestURL: req.IngestURL, StreamKey: req.StreamKey})
	if errors.Is(err, destination.ErrAlreadyLinked) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_linked"})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "linked", "destination": d})
}

func newStateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
