package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onairlab/studio-core/db"
)

// tables in child-first order so deletes never trip a foreign key.
var tables = []string{
	"comments",
	"broadcast_destinations",
	"broadcasts",
	"template_destinations",
	"templates",
	"destinations",
	"kv",
}

// SetupTestDB creates a test database connection and runs migrations.
// It skips the test if TEST_PG_DSN environment variable is not set.
// All studio tables are emptied when the test finishes, so tests in one
// package see a clean database regardless of declaration order or reruns.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), database); err != nil {
		_ = database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	CleanTables(t, database)
	t.Cleanup(func() {
		CleanTables(t, database)
		_ = database.Close()
	})
	return database
}

// CleanTables empties every studio table. Called on setup as well as cleanup
// so a suite aborted mid-test cannot poison the next run.
func CleanTables(t *testing.T, database *sql.DB) {
	t.Helper()
	for _, table := range tables {
		if _, err := database.ExecContext(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to clean table %s: %v", table, err)
		}
	}
}
