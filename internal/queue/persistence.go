package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cadenza/cadenza/internal/config"
	"github.com/cadenza/cadenza/internal/provider"
	_ "modernc.org/sqlite"
)

// Saved is the part of a playback session that survives a restart.
type Saved struct {
	Tracks    []provider.Track
	Index     int
	Rendition provider.Rendition
	ArtURL    string
	Color     string
	ProfileID string
	SavedAt   time.Time
}

// PersistenceStore handles queue state persistence to SQLite.
type PersistenceStore struct {
	db *sql.DB
}

// NewPersistenceStore creates a new persistence store at the given path.
// If dbPath is empty, uses the default location.
func NewPersistenceStore(dbPath string) (*PersistenceStore, error) {
	if dbPath == "" {
		var err error
		dbPath, err = defaultQueueDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve queue db path: %w", err)
		}
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}

	store := &PersistenceStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func defaultQueueDBPath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state", "queue.db"), nil
}

func (s *PersistenceStore) ensureSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS queue_items (
			position INTEGER PRIMARY KEY,
			track_id TEXT NOT NULL,
			track_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS queue_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			current_index INTEGER NOT NULL DEFAULT -1,
			rendition TEXT NOT NULL DEFAULT 'vocal',
			art_url TEXT NOT NULL DEFAULT '',
			color TEXT NOT NULL DEFAULT '',
			profile_id TEXT NOT NULL DEFAULT '',
			saved_at INTEGER NOT NULL DEFAULT 0
		);`,
		`INSERT OR IGNORE INTO queue_state (id) VALUES (1);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate queue schema: %w", err)
		}
	}
	return nil
}

// Save replaces the persisted session with st.
func (s *PersistenceStore) Save(ctx context.Context, st Saved) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_items`); err != nil {
		return fmt.Errorf("clear queue items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO queue_items (position, track_id, track_json) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, track := range st.Tracks {
		trackJSON, err := json.Marshal(track)
		if err != nil {
			return fmt.Errorf("marshal track %s: %w", track.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, i, track.ID, string(trackJSON)); err != nil {
			return fmt.Errorf("insert track %s: %w", track.ID, err)
		}
	}

	rendition := st.Rendition
	if !rendition.Valid() {
		rendition = provider.Vocal
	}
	savedAt := st.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE queue_state SET current_index = ?, rendition = ?, art_url = ?, color = ?, profile_id = ?, saved_at = ? WHERE id = 1`,
		st.Index, string(rendition), st.ArtURL, st.Color, st.ProfileID, savedAt.Unix())
	if err != nil {
		return fmt.Errorf("update queue state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Load reads the persisted session. An empty store yields Index -1.
func (s *PersistenceStore) Load(ctx context.Context) (Saved, error) {
	result := Saved{Index: -1, Rendition: provider.Vocal}

	var rendition string
	var savedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT current_index, rendition, art_url, color, profile_id, saved_at FROM queue_state WHERE id = 1`).
		Scan(&result.Index, &rendition, &result.ArtURL, &result.Color, &result.ProfileID, &savedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return result, fmt.Errorf("load queue state: %w", err)
	}
	if r := provider.Rendition(rendition); r.Valid() {
		result.Rendition = r
	}
	if savedAt > 0 {
		result.SavedAt = time.Unix(savedAt, 0)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT track_json FROM queue_items ORDER BY position ASC`)
	if err != nil {
		return result, fmt.Errorf("load queue items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var trackJSON string
		if err := rows.Scan(&trackJSON); err != nil {
			return result, fmt.Errorf("scan track: %w", err)
		}
		var track provider.Track
		if err := json.Unmarshal([]byte(trackJSON), &track); err != nil {
			// Skip corrupted entries
			continue
		}
		result.Tracks = append(result.Tracks, track)
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("iterate tracks: %w", err)
	}

	if result.Index >= len(result.Tracks) {
		result.Index = len(result.Tracks) - 1
	}
	if result.Index < 0 && len(result.Tracks) > 0 {
		result.Index = 0
	}
	return result, nil
}

// Clear removes all persisted queue data.
func (s *PersistenceStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_items`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE queue_state SET current_index = -1, rendition = 'vocal', art_url = '', color = '' WHERE id = 1`); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *PersistenceStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
