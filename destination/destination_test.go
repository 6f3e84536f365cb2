package destination

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onairlab/studio-core/crypto"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(RTMPAdapter{}, &TwitchAdapter{})
	a, err := r.Adapter(ProviderRTMP)
	if err != nil || a.Provider() != ProviderRTMP {
		t.Errorf("Adapter(rtmp) = %v, %v", a, err)
	}
	if _, err := r.Adapter(ProviderYouTube); err == nil {
		t.Error("unregistered provider should error")
	}
}

func TestProviderValid(t *testing.T) {
	for _, p := range []Provider{ProviderYouTube, ProviderTwitch, ProviderRTMP} {
		if !p.Valid() {
			t.Errorf("%q should be valid", p)
		}
	}
	if Provider("facebook").Valid() {
		t.Error("unknown provider should be invalid")
	}
}

func TestRTMPCreateBroadcast(t *testing.T) {
	tests := []struct {
		name    string
		creds   crypto.Credentials
		want    string
		wantErr bool
	}{
		{
			name:  "url with key",
			creds: crypto.Credentials{IngestURL: "rtmp://relay.example/live", StreamKey: "abc123"},
			want:  "rtmp://relay.example/live/abc123",
		},
		{
			name:  "url only",
			creds: crypto.Credentials{IngestURL: "rtmp://relay.example/live/abc123"},
			want:  "rtmp://relay.example/live/abc123",
		},
		{
			name:    "missing url",
			creds:   crypto.Credentials{StreamKey: "abc123"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eb, err := RTMPAdapter{}.CreateBroadcast(context.Background(), tt.creds, BroadcastParams{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateBroadcast: %v", err)
			}
			if eb.IngestURL != tt.want {
				t.Errorf("ingest = %q, want %q", eb.IngestURL, tt.want)
			}
		})
	}
}

func TestTwitchCreateBroadcast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("auth header = %q", got)
		}
		switch r.URL.Path {
		case "/users":
			_, _ = w.Write([]byte(`{"data":[{"id":"42","login":"oncast","display_name":"OnCast"}]}`))
		case "/streams/key":
			if r.URL.Query().Get("broadcaster_id") != "42" {
				t.Errorf("broadcaster_id = %q", r.URL.Query().Get("broadcaster_id"))
			}
			_, _ = w.Write([]byte(`{"data":[{"stream_key":"live_42_secret"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := &TwitchAdapter{
		ClientID:   "cid",
		IngestBase: "rtmp://live.twitch.tv/app",
		APIBase:    srv.URL,
	}
	eb, err := a.CreateBroadcast(context.Background(), crypto.Credentials{AccessToken: "tok-1"}, BroadcastParams{Title: "show"})
	if err != nil {
		t.Fatalf("CreateBroadcast: %v", err)
	}
	if eb.IngestURL != "rtmp://live.twitch.tv/app/live_42_secret" {
		t.Errorf("ingest = %q", eb.IngestURL)
	}
	if eb.ChatID != "oncast" {
		t.Errorf("chat id = %q, want channel login", eb.ChatID)
	}
	if err := a.Finalize(context.Background(), crypto.Credentials{}, eb); err != nil {
		t.Errorf("finalize should be a no-op: %v", err)
	}
}

func TestTwitchCreateBroadcastNoToken(t *testing.T) {
	a := &TwitchAdapter{}
	if _, err := a.CreateBroadcast(context.Background(), crypto.Credentials{}, BroadcastParams{}); err == nil {
		t.Error("expected error without stored token")
	}
}

func TestTwitchTokenGrants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("code") != "code-1" {
				t.Errorf("code = %q", r.Form.Get("code"))
			}
		case "refresh_token":
			if r.Form.Get("refresh_token") != "ref-1" {
				t.Errorf("refresh_token = %q", r.Form.Get("refresh_token"))
			}
		default:
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`))
	}))
	defer srv.Close()

	a := &TwitchAdapter{ClientID: "cid", ClientSecret: "sec", AuthBase: srv.URL}
	if res, err := a.ExchangeAuthCode(context.Background(), "code-1", "http://cb"); err != nil || res.AccessToken != "at" {
		t.Errorf("ExchangeAuthCode = %+v, %v", res, err)
	}
	if res, err := a.RefreshToken(context.Background(), "ref-1"); err != nil || res.RefreshToken != "rt" {
		t.Errorf("RefreshToken = %+v, %v", res, err)
	}
	if _, err := a.RefreshToken(context.Background(), ""); err == nil {
		t.Error("empty refresh token should fail before the request")
	}
}

func TestTwitchAuthorizeURL(t *testing.T) {
	a := &TwitchAdapter{ClientID: "cid"}
	u, err := a.AuthorizeURL("http://cb", "channel:read:stream_key chat:read", "st-1")
	if err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}
	for _, want := range []string{"client_id=cid", "state=st-1", "response_type=code"} {
		if !strings.Contains(u, want) {
			t.Errorf("url %q missing %q", u, want)
		}
	}
	if _, err := a.AuthorizeURL("", "", ""); err == nil {
		t.Error("missing redirect should error")
	}
}
