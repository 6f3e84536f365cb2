package scene

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
)

// WriteMode selects whether an edit is session-local or written through.
type WriteMode int

const (
	// Ephemeral keeps the edit in the session overlay; the database row is untouched.
	Ephemeral WriteMode = iota
	// Persist writes the edited template through to the database.
	Persist
)

// templateDoc is the JSONB shape stored in templates.doc.
type templateDoc struct {
	Scenes []Scene        `json:"scenes"`
	Config TemplateConfig `json:"config"`
}

// Store persists templates and layers session-local edits on top. Reads prefer
// the session overlay so the compositor always sees the studio's live state.
type Store struct {
	db *sql.DB

	mu      sync.RWMutex
	session map[string]*Template
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, session: make(map[string]*Template)}
}

// Create inserts a new template row.
func (s *Store) Create(ctx context.Context, t *Template) error {
	if t.ID == "" {
		return fmt.Errorf("template id required")
	}
	t.Normalize()
	doc, err := json.Marshal(templateDoc{Scenes: t.Scenes, Config: t.Config})
	if err != nil {
		return fmt.Errorf("marshal template doc: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates (id, profile_id, title, description, doc, created_at) VALUES ($1,$2,$3,$4,$5,NOW())`,
		t.ID, t.ProfileID, t.Title, t.Description, doc)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// Load reads a template from the database, bypassing the session overlay.
func (s *Store) Load(ctx context.Context, id string) (*Template, error) {
	var t Template
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, profile_id, title, description, doc FROM templates WHERE id=$1`, id).
		Scan(&t.ID, &t.ProfileID, &t.Title, &t.Description, &doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: template %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	var d templateDoc
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("unmarshal template doc: %w", err)
	}
	t.Scenes = d.Scenes
	t.Config = d.Config
	t.Normalize()
	return &t, nil
}

// Get returns the session-local template when one exists, else the persisted one.
func (s *Store) Get(ctx context.Context, id string) (*Template, error) {
	s.mu.RLock()
	t, ok := s.session[id]
	s.mu.RUnlock()
	if ok {
		return t.Clone(), nil
	}
	return s.Load(ctx, id)
}

// Save writes a template through to the database and drops any stale overlay.
func (s *Store) Save(ctx context.Context, t *Template) error {
	t.Normalize()
	doc, err := json.Marshal(templateDoc{Scenes: t.Scenes, Config: t.Config})
	if err != nil {
		return fmt.Errorf("marshal template doc: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET title=$1, description=$2, doc=$3, updated_at=NOW() WHERE id=$4`,
		t.Title, t.Description, doc, t.ID)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: template %q", ErrNotFound, t.ID)
	}
	s.mu.Lock()
	delete(s.session, t.ID)
	s.mu.Unlock()
	return nil
}

// ApplySceneEdit loads the current template state (session overlay preferred),
// applies the command, and either keeps the result session-local or persists it.
// Returns the new state. A failed command leaves both layers untouched.
func (s *Store) ApplySceneEdit(ctx context.Context, templateID string, cmd Command, mode WriteMode) (*Template, error) {
	t, err := s.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := cmd.Apply(t); err != nil {
		return nil, err
	}
	t.Normalize()
	switch mode {
	case Persist:
		if err := s.Save(ctx, t); err != nil {
			return nil, err
		}
	default:
		s.mu.Lock()
		s.session[templateID] = t.Clone()
		s.mu.Unlock()
	}
	return t, nil
}

// DiscardSession drops session-local edits for a template.
func (s *Store) DiscardSession(templateID string) {
	s.mu.Lock()
	delete(s.session, templateID)
	s.mu.Unlock()
}

// ReplaceDestinations replaces the template's linked destination set. The whole
// desired set is diffed into insert/delete statements inside one transaction.
func (s *Store) ReplaceDestinations(ctx context.Context, templateID string, destinationIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT destination_id FROM template_destinations WHERE template_id=$1`, templateID)
	if err != nil {
		return fmt.Errorf("list linked destinations: %w", err)
	}
	current := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		current[id] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	desired := make(map[string]bool, len(destinationIDs))
	for _, id := range destinationIDs {
		desired[id] = true
	}
	for id := range desired {
		if !current[id] {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO template_destinations (template_id, destination_id) VALUES ($1,$2)`, templateID, id); err != nil {
				return fmt.Errorf("link destination %s: %w", id, err)
			}
		}
	}
	for id := range current {
		if !desired[id] {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM template_destinations WHERE template_id=$1 AND destination_id=$2`, templateID, id); err != nil {
				return fmt.Errorf("unlink destination %s: %w", id, err)
			}
		}
	}
	return tx.Commit()
}

// LinkedDestinationIDs lists the destinations currently linked to a template.
func (s *Store) LinkedDestinationIDs(ctx context.Context, templateID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT destination_id FROM template_destinations WHERE template_id=$1 ORDER BY destination_id`, templateID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
