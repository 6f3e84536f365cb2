package scene_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/onairlab/studio-core/scene"
	"github.com/onairlab/studio-core/testutil"
)

func seedTemplate(t *testing.T, s *scene.Store, id string) *scene.Template {
	t.Helper()
	tpl := &scene.Template{
		ID:        id,
		ProfileID: "prof-1",
		Title:     "Round Trip",
		Scenes: []scene.Scene{
			{ID: id + "-sc-1", Title: "Intro", Layout: scene.LayoutSolo},
			{ID: id + "-sc-2", Title: "Panel", Layout: scene.LayoutSideBySide},
		},
		Config: scene.TemplateConfig{
			Banners:      []scene.Banner{{ID: "bn-1", Title: "Hello"}},
			Tickers:      []scene.Ticker{{ID: "tk-1", Text: "news"}},
			PrimaryColor: "#123456",
			FontFamily:   "Inter",
		},
	}
	if err := s.Create(context.Background(), tpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return tpl
}

func TestTemplateRoundTrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	s := scene.NewStore(database)
	tpl := seedTemplate(t, s, "tpl-roundtrip")

	got, err := s.Load(context.Background(), tpl.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// Create normalizes SelectedSceneID to scenes[0] before persisting.
	tpl.Config.SelectedSceneID = tpl.Scenes[0].ID
	if !reflect.DeepEqual(got, tpl) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, tpl)
	}
}

func TestApplySceneEditWriteModes(t *testing.T) {
	database := testutil.SetupTestDB(t)
	s := scene.NewStore(database)
	tpl := seedTemplate(t, s, "tpl-modes")
	ctx := context.Background()

	// Ephemeral edit: visible via Get, invisible via Load.
	got, err := s.ApplySceneEdit(ctx, tpl.ID, scene.ToggleBanner{SceneID: tpl.Scenes[0].ID, BannerID: "bn-1"}, scene.Ephemeral)
	if err != nil {
		t.Fatalf("ApplySceneEdit(ephemeral) error = %v", err)
	}
	if got.Scenes[0].CurrentBannerID != "bn-1" {
		t.Fatalf("edit not applied in returned state")
	}
	fromSession, err := s.Get(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if fromSession.Scenes[0].CurrentBannerID != "bn-1" {
		t.Errorf("session overlay should carry the ephemeral edit")
	}
	persisted, err := s.Load(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if persisted.Scenes[0].CurrentBannerID != "" {
		t.Errorf("ephemeral edit must not be written through")
	}

	// Persist edit: written through and overlay dropped.
	if _, err := s.ApplySceneEdit(ctx, tpl.ID, scene.SetLayout{SceneID: tpl.Scenes[0].ID, Layout: scene.LayoutGrid}, scene.Persist); err != nil {
		t.Fatalf("ApplySceneEdit(persist) error = %v", err)
	}
	persisted, err = s.Load(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if persisted.Scenes[0].Layout != scene.LayoutGrid {
		t.Errorf("persisted edit missing from database")
	}
}

func TestApplySceneEditFailureLeavesStateUntouched(t *testing.T) {
	database := testutil.SetupTestDB(t)
	s := scene.NewStore(database)
	tpl := seedTemplate(t, s, "tpl-fail")
	ctx := context.Background()

	if _, err := s.ApplySceneEdit(ctx, tpl.ID, scene.ToggleBanner{SceneID: tpl.Scenes[0].ID, BannerID: "ghost"}, scene.Persist); err == nil {
		t.Fatalf("edit with unknown banner should fail")
	}
	got, err := s.Get(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Scenes[0].CurrentBannerID != "" {
		t.Errorf("failed edit must not mutate state")
	}
}

func TestReplaceDestinationsDiff(t *testing.T) {
	database := testutil.SetupTestDB(t)
	s := scene.NewStore(database)
	tpl := seedTemplate(t, s, "tpl-dest")
	ctx := context.Background()

	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := database.ExecContext(ctx, q, args...); err != nil {
			t.Fatalf("exec %s: %v", q, err)
		}
	}
	mustExec(`INSERT INTO destinations (id, profile_id, provider, external_id) VALUES ('d1','prof-1','youtube','u1') ON CONFLICT DO NOTHING`)
	mustExec(`INSERT INTO destinations (id, profile_id, provider, external_id) VALUES ('d2','prof-1','twitch','u2') ON CONFLICT DO NOTHING`)
	mustExec(`INSERT INTO destinations (id, profile_id, provider, external_id) VALUES ('d3','prof-1','rtmp','u3') ON CONFLICT DO NOTHING`)

	if err := s.ReplaceDestinations(ctx, tpl.ID, []string{"d1", "d2"}); err != nil {
		t.Fatalf("ReplaceDestinations() error = %v", err)
	}
	ids, err := s.LinkedDestinationIDs(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("LinkedDestinationIDs() error = %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"d1", "d2"}) {
		t.Fatalf("linked = %v, want [d1 d2]", ids)
	}

	// Replacement diffs: d1 removed, d3 added, d2 kept.
	if err := s.ReplaceDestinations(ctx, tpl.ID, []string{"d2", "d3"}); err != nil {
		t.Fatalf("ReplaceDestinations() error = %v", err)
	}
	ids, err = s.LinkedDestinationIDs(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("LinkedDestinationIDs() error = %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"d2", "d3"}) {
		t.Errorf("linked after replace = %v, want [d2 d3]", ids)
	}
}
