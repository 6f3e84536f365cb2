package testutil

import (
	"context"
	"testing"
)

func TestCleanTablesRemovesSeededRows(t *testing.T) {
	database := SetupTestDB(t)
	ctx := context.Background()

	if _, err := database.ExecContext(ctx,
		`INSERT INTO destinations (id, profile_id, provider, external_id, credentials, created_at)
		 VALUES ('d-clean', 'p-clean', 'rtmp', 'rtmp://x/live', '', NOW())`); err != nil {
		t.Fatalf("seed destination: %v", err)
	}
	if _, err := database.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES ('clean-check', '1')
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`); err != nil {
		t.Fatalf("seed kv: %v", err)
	}

	CleanTables(t, database)

	for _, table := range tables {
		var n int
		if err := database.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("table %s has %d rows after clean, want 0", table, n)
		}
	}
}
