package comments

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/onairlab/studio-core/telemetry"
	"github.com/onairlab/studio-core/testutil"
)

// seedFanOut inserts the broadcast and fan-out rows the comment tables hang off.
func seedFanOut(t *testing.T, db *sql.DB, broadcastID, fanOutID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `INSERT INTO broadcasts (id, profile_id, title, started_at)
		VALUES ($1,'p1','show',NOW())`, broadcastID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO destinations (id, profile_id, provider, external_id)
		VALUES ($1,'p1','youtube',$1)`, "dest-"+fanOutID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO broadcast_destinations (id, broadcast_id, destination_id, external_chat_id)
		VALUES ($1,$2,$3,'chat-1')`, fanOutID, broadcastID, "dest-"+fanOutID); err != nil {
		t.Fatal(err)
	}
}

func endBroadcast(t *testing.T, db *sql.DB, broadcastID string) {
	t.Helper()
	if _, err := db.Exec(`UPDATE broadcasts SET ended_at = NOW() WHERE id = $1`, broadcastID); err != nil {
		t.Fatal(err)
	}
}

func TestInsertDedupByExternalID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedFanOut(t, db, "b1", "fo1")
	store := NewStore(db)
	ctx := context.Background()

	m := Message{ExternalID: "ext-1", Author: "viewer", Content: "hello"}
	ok, err := store.Insert(ctx, "fo1", m)
	if err != nil || !ok {
		t.Fatalf("first insert = %v, %v", ok, err)
	}
	ok, err = store.Insert(ctx, "fo1", m)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if ok {
		t.Error("duplicate external id should not insert")
	}
}

func TestListAfterCursor(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedFanOut(t, db, "b1", "fo1")
	store := NewStore(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Insert(ctx, "fo1", Message{
			ExternalID:  fmt.Sprintf("ext-%d", i),
			Author:      "viewer",
			Content:     fmt.Sprintf("msg %d", i),
			PublishedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	first, cursor, err := store.ListAfter(ctx, "b1", "", 3)
	if err != nil {
		t.Fatalf("ListAfter: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("first page = %d, want 3", len(first))
	}
	second, _, err := store.ListAfter(ctx, "b1", cursor, 3)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("second page = %d, want 2", len(second))
	}
	if second[0].ExternalID != "ext-3" {
		t.Errorf("second page starts at %q, want ext-3", second[0].ExternalID)
	}

	if _, _, err := store.ListAfter(ctx, "b1", "not-a-number", 3); err == nil {
		t.Error("malformed cursor should error")
	}
}

// scriptedSource replays fixed pages; replaying the same pages must be a
// no-op thanks to external-id dedup.
type scriptedSource struct {
	pages [][]Message
	calls int
}

func (s *scriptedSource) FetchPage(_ context.Context, _, _ string) ([]Message, string, bool, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.pages) {
		return nil, "tok-final", false, nil
	}
	full := idx < len(s.pages)-1
	return s.pages[idx], fmt.Sprintf("tok-%d", idx+1), full, nil
}

func TestPollOnceDrainsPagesAndCheckpoints(t *testing.T) {
	telemetry.Init()
	db := testutil.SetupTestDB(t)
	seedFanOut(t, db, "b1", "fo1")
	store := NewStore(db)

	src := &scriptedSource{pages: [][]Message{
		{{ExternalID: "a"}, {ExternalID: "b"}},
		{{ExternalID: "c"}},
	}}
	p := &Poller{DB: db, Store: store, Source: src, FanOutID: "fo1", ChatID: "chat-1"}
	ctx := context.Background()

	if err := p.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("fetch calls = %d, want 2 (stop on partial page)", src.calls)
	}
	comments, _, err := store.ListAfter(ctx, "b1", "", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 3 {
		t.Fatalf("comments = %d, want 3", len(comments))
	}

	cursor, err := p.loadCursor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cursor != "tok-2" {
		t.Errorf("checkpointed cursor = %q, want tok-2", cursor)
	}

	// Replay the same pages: the cycle succeeds and inserts nothing new.
	src.calls = 0
	if err := p.pollOnce(ctx); err != nil {
		t.Fatalf("replayed pollOnce: %v", err)
	}
	comments, _, err = store.ListAfter(ctx, "b1", "", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 3 {
		t.Errorf("replay inserted duplicates: %d comments", len(comments))
	}
}

func TestPollerStopsAfterBroadcastEnds(t *testing.T) {
	telemetry.Init()
	db := testutil.SetupTestDB(t)
	seedFanOut(t, db, "b1", "fo1")
	endBroadcast(t, db, "b1")

	p := &Poller{
		DB:       db,
		Store:    NewStore(db),
		Source:   &scriptedSource{},
		FanOutID: "fo1",
		ChatID:   "chat-1",
		Interval: 10 * time.Millisecond,
	}

	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		p.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("poller did not exit after broadcast end")
	}
}

func TestBroadcastEndedCheck(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedFanOut(t, db, "b1", "fo1")
	p := &Poller{DB: db, FanOutID: "fo1"}
	ctx := context.Background()

	ended, err := p.broadcastEnded(ctx)
	if err != nil || ended {
		t.Fatalf("broadcastEnded = %v, %v; want false", ended, err)
	}
	endBroadcast(t, db, "b1")
	ended, err = p.broadcastEnded(ctx)
	if err != nil || !ended {
		t.Fatalf("broadcastEnded = %v, %v; want true", ended, err)
	}
}
