package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onairlab/studio-core/broadcast"
	"github.com/onairlab/studio-core/comments"
	"github.com/onairlab/studio-core/config"
	"github.com/onairlab/studio-core/crypto"
	"github.com/onairlab/studio-core/destination"
	"github.com/onairlab/studio-core/egress"
	"github.com/onairlab/studio-core/scene"
	"github.com/onairlab/studio-core/telemetry"
	"github.com/onairlab/studio-core/testutil"
)

func newTestServer(t *testing.T) (*httptest.Server, Deps) {
	t.Helper()
	telemetry.Init()
	db := testutil.SetupTestDB(t)
	mock := testutil.NewMockEgressServer(t)

	cfg := &config.Config{
		OutputWidth: 1920, OutputHeight: 1080, TickRate: 30,
		EgressURL: mock.URL, RoomURL: mock.URL, StorageBaseURL: "https://media.example",
	}
	scenes := scene.NewStore(db)
	dests := destination.NewStore(db, crypto.NewVault(nil))
	orch := broadcast.New(db, scenes, dests,
		destination.NewRegistry(destination.RTMPAdapter{}),
		egress.NewHTTPClient(mock.URL),
		&egress.HTTPTrackProvider{BaseURL: mock.URL},
		nil, cfg.StorageBaseURL)
	deps := Deps{
		DB:           db,
		Cfg:          cfg,
		Scenes:       scenes,
		Destinations: dests,
		Orchestrator: orch,
		Comments:     comments.NewStore(db),
		YouTube:      destination.NewYouTubeAdapter(cfg),
		Twitch:       destination.NewTwitchAdapter(cfg),
	}
	srv := httptest.NewServer(NewMux(context.Background(), deps))
	t.Cleanup(srv.Close)
	return srv, deps
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d: %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("correlation id header missing")
	}
}

func TestTemplateLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/templates", map[string]any{
		"profile_id": "p1",
		"title":      "My Show",
		"scenes": []map[string]any{
			{"id": "s1", "title": "Intro", "layout": "solo"},
			{"id": "s2", "title": "Panel", "layout": "grid"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d: %s", resp.StatusCode, body)
	}
	var tpl scene.Template
	if err := json.Unmarshal(body, &tpl); err != nil {
		t.Fatal(err)
	}

	// Ephemeral edit: visible through the API, not written to the row.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/templates/"+tpl.ID+"/edits", map[string]any{
		"op":   "select_scene",
		"args": map[string]string{"scene_id": "s2"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit = %d: %s", resp.StatusCode, body)
	}
	var edited scene.Template
	if err := json.Unmarshal(body, &edited); err != nil {
		t.Fatal(err)
	}
	if edited.Config.SelectedSceneID != "s2" {
		t.Errorf("selected scene = %q, want s2", edited.Config.SelectedSceneID)
	}

	// Discard the session and confirm the stored selection is unchanged.
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/templates/"+tpl.ID+"/session", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discard = %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/templates/"+tpl.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get = %d", resp.StatusCode)
	}
	var stored scene.Template
	if err := json.Unmarshal(body, &stored); err != nil {
		t.Fatal(err)
	}
	if stored.Config.SelectedSceneID != "s1" {
		t.Errorf("stored selection = %q, want s1 after discard", stored.Config.SelectedSceneID)
	}

	// Unknown op is a 400.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/templates/"+tpl.ID+"/edits", map[string]any{"op": "explode"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown op = %d, want 400", resp.StatusCode)
	}
}

func TestTemplatePreview(t *testing.T) {
	srv, deps := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/templates", map[string]any{
		"profile_id": "p1",
		"title":      "Preview Show",
		"scenes":     []map[string]any{{"id": "s1", "title": "Panel", "layout": "grid"}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d: %s", resp.StatusCode, body)
	}
	var tpl scene.Template
	if err := json.Unmarshal(body, &tpl); err != nil {
		t.Fatal(err)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/templates/"+tpl.ID+"/preview?sources=4", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview = %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	want := image.Rect(0, 0, deps.Cfg.OutputWidth, deps.Cfg.OutputHeight)
	if img.Bounds() != want {
		t.Errorf("preview bounds = %v, want %v", img.Bounds(), want)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/templates/no-such/preview", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing template preview = %d, want 404", resp.StatusCode)
	}
}

func TestDestinationLinkAndList(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/destinations", map[string]any{
		"profile_id":   "p1",
		"display_name": "My Relay",
		"ingest_url":   "rtmp://relay.example/live",
		"stream_key":   "k1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("link = %d: %s", resp.StatusCode, body)
	}

	// A second identical link is benign.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/destinations", map[string]any{
		"profile_id": "p1",
		"ingest_url": "rtmp://relay.example/live",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("relink = %d: %s", resp.StatusCode, body)
	}
	var relink map[string]string
	if err := json.Unmarshal(body, &relink); err != nil {
		t.Fatal(err)
	}
	if relink["status"] != "already_linked" {
		t.Errorf("relink status = %q", relink["status"])
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/destinations?profile_id=p1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list = %d", resp.StatusCode)
	}
	var list struct {
		Destinations []destination.Destination `json:"destinations"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Destinations) != 1 {
		t.Errorf("destinations = %d, want 1", len(list.Destinations))
	}
}

func TestBroadcastStartStopOverHTTP(t *testing.T) {
	srv, deps := newTestServer(t)
	ctx := context.Background()

	d, err := deps.Destinations.Link(ctx, destination.Destination{
		ProfileID: "p1", Provider: destination.ProviderRTMP, ExternalID: "relay-1",
	}, crypto.Credentials{IngestURL: "rtmp://relay.example/live", StreamKey: "k1"})
	if err != nil {
		t.Fatal(err)
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/broadcasts", map[string]any{
		"profile_id":      "p1",
		"room_id":         "room-1",
		"title":           "HTTP Show",
		"destination_ids": []string{d.ID},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start = %d: %s", resp.StatusCode, body)
	}
	var b broadcast.Broadcast
	if err := json.Unmarshal(body, &b); err != nil {
		t.Fatal(err)
	}
	if b.LiveURL == "" || b.EgressID == "" {
		t.Errorf("broadcast = %+v", b)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/broadcasts/"+b.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get = %d: %s", resp.StatusCode, body)
	}
	var got struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got.State != "live" {
		t.Errorf("state = %q, want live", got.State)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/broadcasts/"+b.ID+"/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/broadcasts/"+b.ID+"/stop", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second stop = %d, want 409", resp.StatusCode)
	}
}

func TestBroadcastStartValidationOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/broadcasts", map[string]any{
		"profile_id": "p1", "room_id": "room-1", "title": "t",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("no destinations start = %d, want 422", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/broadcasts", map[string]any{"room_id": "room-1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing profile = %d, want 400", resp.StatusCode)
	}
}

func TestCommentsRead(t *testing.T) {
	srv, deps := newTestServer(t)
	ctx := context.Background()

	d, err := deps.Destinations.Link(ctx, destination.Destination{
		ProfileID: "p1", Provider: destination.ProviderRTMP, ExternalID: "relay-1",
	}, crypto.Credentials{IngestURL: "rtmp://relay.example/live"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := deps.Orchestrator.Start(ctx, broadcast.StartInput{
		ProfileID: "p1", RoomID: "room-1", Title: "t", DestinationIDs: []string{d.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	fanouts, err := deps.Orchestrator.FanOuts(ctx, b.ID)
	if err != nil || len(fanouts) != 1 {
		t.Fatalf("fanouts = %v, %v", fanouts, err)
	}
	for i := 0; i < 3; i++ {
		if _, err := deps.Comments.Insert(ctx, fanouts[0].ID, comments.Message{
			ExternalID: fmt.Sprintf("m-%d", i), Author: "viewer", Content: fmt.Sprintf("hi %d", i),
		}); err != nil {
			t.Fatal(err)
		}
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/broadcasts/"+b.ID+"/comments?limit=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("comments = %d: %s", resp.StatusCode, body)
	}
	var page struct {
		Comments []comments.Comment `json:"comments"`
		Cursor   string             `json:"cursor"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Comments) != 2 || page.Cursor == "" {
		t.Fatalf("page = %+v", page)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/broadcasts/"+b.ID+"/comments?cursor="+page.Cursor, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("page 2 = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Comments) != 1 {
		t.Errorf("page 2 = %d comments, want 1", len(page.Comments))
	}
}
