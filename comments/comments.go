// Package comments ingests viewer comments from destination chat feeds and
// serves cursor-paged reads. Ingest is idempotent: dedup runs on the external
// message id, never on cursor position, because provider cursors can replay.
package comments

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Comment is one persisted viewer message.
type Comment struct {
	ID                     int64     `json:"id"`
	ExternalID             string    `json:"external_id"`
	BroadcastDestinationID string    `json:"broadcast_destination_id"`
	Author                 string    `json:"author"`
	Content                string    `json:"content"`
	IsAdmin                bool      `json:"is_admin"`
	PublishedAt            time.Time `json:"published_at"`
}

// Message is one fetched chat message before persistence.
type Message struct {
	ExternalID  string
	Author      string
	Content     string
	IsAdmin     bool
	PublishedAt time.Time
}

// Store persists and reads comments.
type Store struct {
	db *sql.DB
}

// NewStore builds a comment store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert persists a message for a fan-out row. Returns false when the external
// id was already present.
func (s *Store) Insert(ctx context.Context, fanOutID string, m Message) (bool, error) {
	published := m.PublishedAt
	if published.IsZero() {
		published = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO comments
		(external_id, broadcast_destination_id, author, content, is_admin, published_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (external_id) DO NOTHING`,
		m.ExternalID, fanOutID, m.Author, m.Content, m.IsAdmin, published)
	if err != nil {
		return false, fmt.Errorf("insert comment: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertBatch persists messages in publication order and reports how many
// were new.
func (s *Store) InsertBatch(ctx context.Context, fanOutID string, msgs []Message) (int, error) {
	inserted := 0
	for _, m := range msgs {
		ok, err := s.Insert(ctx, fanOutID, m)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// ListAfter returns up to limit comments for a broadcast after the cursor.
// The cursor is the last seen comment's serial id as a decimal string; empty
// means from the beginning. The returned cursor addresses the next page.
func (s *Store) ListAfter(ctx context.Context, broadcastID, cursor string, limit int) ([]Comment, string, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	after := int64(0)
	if cursor != "" {
		var err error
		after, err = strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("malformed cursor %q", cursor)
		}
	}
	rows, err := s.db.QueryContext(ctx, `SELECT c.id, c.external_id, c.broadcast_destination_id,
		COALESCE(c.author,''), COALESCE(c.content,''), c.is_admin, COALESCE(c.published_at, c.created_at)
		FROM comments c
		JOIN broadcast_destinations bd ON bd.id = c.broadcast_destination_id
		WHERE bd.broadcast_id = $1 AND c.id > $2
		ORDER BY c.id
		LIMIT $3`, broadcastID, after, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ExternalID, &c.BroadcastDestinationID,
			&c.Author, &c.Content, &c.IsAdmin, &c.PublishedAt); err != nil {
			return nil, "", err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := cursor
	if len(out) > 0 {
		next = strconv.FormatInt(out[len(out)-1].ID, 10)
	}
	return out, next, nil
}
