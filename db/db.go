// Package db provides database connection helpers, schema migration, and small data access helpers.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onairlab/studio-core/crypto"
)

// Connect opens a Postgres connection. The DSN comes from config (DB_DSN with
// its default); config is the single place that reads database environment.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}
	return sql.Open("pgx", dsn)
}

// VaultFromEnv builds the credential vault from ENCRYPTION_KEY. When the key is
// absent the vault stores credential blobs in plaintext (not recommended for
// production); a malformed key is a hard error.
func VaultFromEnv() (*crypto.Vault, error) {
	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		slog.Warn("ENCRYPTION_KEY not set, destination credentials will be stored in plaintext (not recommended for production)", slog.String("component", "db_encryption"))
		return crypto.NewVault(nil), nil
	}
	enc, err := crypto.NewAESEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	slog.Info("credential encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
	return crypto.NewVault(enc), nil
}

// Migrate applies idempotent schema changes for all required tables and indices.
func Migrate(ctx context.Context, db *sql.DB) error { return migratePostgres(ctx, db) }

func migratePostgres(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			title TEXT,
			description TEXT,
			doc JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS destinations (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			external_id TEXT NOT NULL,
			display_name TEXT,
			avatar_url TEXT,
			credentials TEXT,
			encryption_version INTEGER DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ,
			UNIQUE(profile_id, provider, external_id)
		)`,
		`CREATE TABLE IF NOT EXISTS template_destinations (
			template_id TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
			destination_id TEXT NOT NULL REFERENCES destinations(id) ON DELETE CASCADE,
			PRIMARY KEY(template_id, destination_id)
		)`,
		`CREATE TABLE IF NOT EXISTS broadcasts (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			template_id TEXT REFERENCES templates(id),
			event_id TEXT,
			title TEXT,
			thumbnail_url TEXT,
			egress_id TEXT,
			live_url TEXT,
			vod_url TEXT,
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS broadcast_destinations (
			id TEXT PRIMARY KEY,
			broadcast_id TEXT NOT NULL REFERENCES broadcasts(id) ON DELETE CASCADE,
			destination_id TEXT NOT NULL REFERENCES destinations(id),
			external_broadcast_id TEXT,
			external_stream_id TEXT,
			external_chat_id TEXT,
			next_page_token TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS comments (
			id SERIAL PRIMARY KEY,
			external_id TEXT UNIQUE NOT NULL,
			broadcast_destination_id TEXT NOT NULL REFERENCES broadcast_destinations(id) ON DELETE CASCADE,
			author TEXT,
			content TEXT,
			is_admin BOOLEAN DEFAULT FALSE,
			published_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_broadcasts_template ON broadcasts(template_id)`,
		`CREATE INDEX IF NOT EXISTS idx_broadcasts_ended ON broadcasts(ended_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bdest_broadcast ON broadcast_destinations(broadcast_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_bdest ON comments(broadcast_destination_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_destinations_profile ON destinations(profile_id)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// SetKV upserts a small state flag or heartbeat value.
func SetKV(ctx context.Context, dbx *sql.DB, key, value string) error {
	_, err := dbx.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES ($1,$2,NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	return err
}

// GetKV reads a kv value; returns "" when absent.
func GetKV(ctx context.Context, dbx *sql.DB, key string) (string, error) {
	var v string
	err := dbx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}
