package destination

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/onairlab/studio-core/crypto"
)

// Store persists linked destinations. Credentials pass through the vault on
// every read and write; callers never see the stored blob.
type Store struct {
	db    *sql.DB
	vault *crypto.Vault
}

// NewStore builds a destination store.
func NewStore(db *sql.DB, vault *crypto.Vault) *Store {
	return &Store{db: db, vault: vault}
}

// Vault exposes the credential vault for adapters that re-seal tokens.
func (s *Store) Vault() *crypto.Vault { return s.vault }

// Link records a newly connected account. Linking the same external account
// twice for one profile returns ErrAlreadyLinked.
func (s *Store) Link(ctx context.Context, d Destination, creds crypto.Credentials) (Destination, error) {
	if !d.Provider.Valid() {
		return Destination{}, fmt.Errorf("invalid provider %q", d.Provider)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	blob, err := s.vault.Seal(creds)
	if err != nil {
		return Destination{}, err
	}
	encVersion := 0
	if s.vault.Encrypted() {
		encVersion = 1
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO destinations
		(id, profile_id, provider, external_id, display_name, avatar_url, credentials, encryption_version, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		d.ID, d.ProfileID, string(d.Provider), d.ExternalID, d.DisplayName, d.AvatarURL, blob, encVersion, d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Destination{}, ErrAlreadyLinked
		}
		return Destination{}, fmt.Errorf("insert destination: %w", err)
	}
	return d, nil
}

// Get loads a destination by id.
func (s *Store) Get(ctx context.Context, id string) (Destination, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, profile_id, provider, external_id,
		COALESCE(display_name,''), COALESCE(avatar_url,''), created_at
		FROM destinations WHERE id = $1`, id)
	var d Destination
	var provider string
	if err := row.Scan(&d.ID, &d.ProfileID, &provider, &d.ExternalID, &d.DisplayName, &d.AvatarURL, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Destination{}, ErrNotFound
		}
		return Destination{}, fmt.Errorf("load destination: %w", err)
	}
	d.Provider = Provider(provider)
	return d, nil
}

// ListByProfile returns all destinations linked by a profile, newest first.
func (s *Store) ListByProfile(ctx context.Context, profileID string) ([]Destination, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, profile_id, provider, external_id,
		COALESCE(display_name,''), COALESCE(avatar_url,''), created_at
		FROM destinations WHERE profile_id = $1 ORDER BY created_at DESC`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()
	var out []Destination
	for rows.Next() {
		var d Destination
		var provider string
		if err := rows.Scan(&d.ID, &d.ProfileID, &provider, &d.ExternalID, &d.DisplayName, &d.AvatarURL, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Provider = Provider(provider)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Credentials opens the stored credential blob for a destination.
func (s *Store) Credentials(ctx context.Context, id string) (crypto.Credentials, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(credentials,'') FROM destinations WHERE id = $1`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return crypto.Credentials{}, ErrNotFound
	}
	if err != nil {
		return crypto.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return s.vault.Open(blob)
}

// UpdateCredentials re-seals and stores fresh credentials, typically after a
// token refresh.
func (s *Store) UpdateCredentials(ctx context.Context, id string, creds crypto.Credentials) error {
	blob, err := s.vault.Seal(creds)
	if err != nil {
		return err
	}
	encVersion := 0
	if s.vault.Encrypted() {
		encVersion = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE destinations
		SET credentials = $2, encryption_version = $3, updated_at = NOW() WHERE id = $1`,
		id, blob, encVersion)
	if err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Unlink removes a destination. Linked template references cascade away; past
// broadcast fan-out rows keep their foreign key, so unlink fails while history
// references the row.
func (s *Store) Unlink(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM destinations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete destination: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpiringCredentials lists destinations whose OAuth access token expires
// within the window. Raw ingest destinations never appear because they carry
// no expiry.
func (s *Store) ExpiringCredentials(ctx context.Context, within time.Duration) ([]Destination, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, profile_id, provider, external_id,
		COALESCE(display_name,''), COALESCE(avatar_url,''), created_at
		FROM destinations WHERE provider IN ('youtube','twitch')`)
	if err != nil {
		return nil, fmt.Errorf("list refreshable destinations: %w", err)
	}
	defer rows.Close()
	var out []Destination
	deadline := time.Now().Add(within)
	for rows.Next() {
		var d Destination
		var provider string
		if err := rows.Scan(&d.ID, &d.ProfileID, &provider, &d.ExternalID, &d.DisplayName, &d.AvatarURL, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Provider = Provider(provider)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Expiry lives inside the sealed blob, so the filter happens after open.
	filtered := out[:0]
	for _, d := range out {
		creds, err := s.Credentials(ctx, d.ID)
		if err != nil {
			continue
		}
		if creds.RefreshToken != "" && !creds.Expiry.IsZero() && creds.Expiry.Before(deadline) {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
