// Package local serves a catalog scanned from music folders on disk. The
// index lives in SQLite next to the rest of the app state.
package local

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/cadenza/cadenza/internal/logging"
	"github.com/cadenza/cadenza/internal/provider"
	"github.com/dhowden/tag"
	"github.com/google/uuid"
	"github.com/samber/lo"
	_ "modernc.org/sqlite"
)

var allowedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".ogg":  true,
	".wav":  true,
	".opus": true,
}

// instrumentalTag marks the instrumental sibling of a track:
// "song.mp3" pairs with "song.instrumental.mp3".
const instrumentalTag = ".instrumental"

var coverNames = []string{"cover.jpg", "cover.png", "folder.jpg", "folder.png"}

type Config struct {
	Roots       []string
	IndexDB     string
	// ScanOnStart forces (true) or suppresses (false) the scan in Initialize.
	// When unset, Initialize scans only an empty index.
	ScanOnStart *bool
	UserID      string
	DisplayName string
}

type Provider struct {
	cfg Config
	db  *sql.DB
	now func() time.Time

	mu        sync.RWMutex
	signedOut bool
}

var _ provider.Backend = (*Provider)(nil)

func New() *Provider {
	return &Provider{now: time.Now}
}

func (p *Provider) ID() string   { return "local" }
func (p *Provider) Name() string { return "Local files" }

func (p *Provider) Initialize(ctx context.Context, profileCfg any) error {
	mapCfg, ok := profileCfg.(map[string]any)
	if !ok {
		return provider.ErrInvalidConfig
	}
	cfg, err := parseConfig(mapCfg)
	if err != nil {
		return err
	}
	p.cfg = cfg
	db, err := sql.Open("sqlite", cfg.IndexDB)
	if err != nil {
		return fmt.Errorf("open index db: %w", err)
	}
	db.SetMaxOpenConns(1)
	p.db = db
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	shouldScan := lo.FromPtr(cfg.ScanOnStart)
	if cfg.ScanOnStart == nil {
		var count int
		if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM songs").Scan(&count); err != nil || count == 0 {
			shouldScan = true
		}
	}
	if shouldScan {
		if _, err := p.Scan(ctx); err != nil {
			return err
		}
	}
	return nil
}

func parseConfig(raw map[string]any) (Config, error) {
	cfg := Config{UserID: "local"}
	if v, ok := raw["roots"].([]any); ok {
		for _, r := range v {
			if s, ok := r.(string); ok && s != "" {
				cfg.Roots = append(cfg.Roots, s)
			}
		}
	}
	if len(cfg.Roots) == 0 {
		return Config{}, provider.ErrInvalidConfig
	}
	if v, ok := raw["index_db"].(string); ok && v != "" {
		cfg.IndexDB = v
	}
	if v, ok := raw["scan_on_start"].(bool); ok {
		cfg.ScanOnStart = &v
	}
	if v, ok := raw["user_id"].(string); ok && v != "" {
		cfg.UserID = v
	}
	if v, ok := raw["display_name"].(string); ok {
		cfg.DisplayName = v
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = os.Getenv("USER")
	}
	if cfg.IndexDB == "" {
		stateDir, err := logging.StateDir()
		if err != nil {
			stateDir = os.TempDir()
		}
		if err := os.MkdirAll(stateDir, 0o755); err != nil {
			return Config{}, fmt.Errorf("create state dir: %w", err)
		}
		cfg.IndexDB = filepath.Join(stateDir, "local.sqlite")
	}
	for i, r := range cfg.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return Config{}, err
		}
		cfg.Roots[i] = abs
	}
	return cfg, nil
}

func (p *Provider) ensureSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS albums (id TEXT PRIMARY KEY, name TEXT NOT NULL, cover_path TEXT NOT NULL DEFAULT '', created_at INTEGER NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS categories (id TEXT PRIMARY KEY, name TEXT NOT NULL, icon_path TEXT NOT NULL DEFAULT '');`,
		`CREATE TABLE IF NOT EXISTS songs (id TEXT PRIMARY KEY, title TEXT NOT NULL, artist TEXT NOT NULL, album_id TEXT, audio_path TEXT NOT NULL UNIQUE, instrumental_path TEXT NOT NULL DEFAULT '', lyrics_timed TEXT, duration_seconds INTEGER NOT NULL DEFAULT 0, store_url TEXT NOT NULL DEFAULT '', store_url_instrumental TEXT NOT NULL DEFAULT '', created_at INTEGER NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS song_categories (song_id TEXT NOT NULL, category_id TEXT NOT NULL, PRIMARY KEY(song_id, category_id));`,
		`CREATE TABLE IF NOT EXISTS playlists (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, name TEXT NOT NULL, cover_color TEXT NOT NULL DEFAULT '', created_at INTEGER NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS playlist_songs (playlist_id TEXT NOT NULL, song_id TEXT NOT NULL, song_order INTEGER NOT NULL, PRIMARY KEY(playlist_id, song_id));`,
		`CREATE TABLE IF NOT EXISTS user_favorite_songs (user_id TEXT NOT NULL, song_id TEXT NOT NULL, created_at INTEGER NOT NULL, PRIMARY KEY(user_id, song_id));`,
		`CREATE INDEX IF NOT EXISTS idx_songs_album ON songs(album_id, title);`,
		`CREATE INDEX IF NOT EXISTS idx_playlist_songs_order ON playlist_songs(playlist_id, song_order);`,
	}
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

func hash(parts ...string) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Scan rebuilds the catalog tables from the configured roots and reports how
// many tracks were indexed. Playlists and favorites survive a rescan because
// track ids are derived from file paths.
func (p *Provider) Scan(ctx context.Context) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, stmt := range []string{`DELETE FROM song_categories`, `DELETE FROM songs`, `DELETE FROM albums`, `DELETE FROM categories`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("clear tables: %w", err)
		}
	}
	insertAlbum, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO albums(id,name,cover_path,created_at) VALUES(?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	insertCategory, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO categories(id,name) VALUES(?,?)`)
	if err != nil {
		return 0, err
	}
	insertSong, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO songs(id,title,artist,album_id,audio_path,instrumental_path,lyrics_timed,duration_seconds,created_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	linkCategory, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO song_categories(song_id,category_id) VALUES(?,?)`)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, root := range p.cfg.Roots {
		walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if !allowedExtensions[strings.ToLower(ext)] {
				return nil
			}
			stem := strings.TrimSuffix(path, ext)
			if strings.HasSuffix(strings.ToLower(stem), instrumentalTag) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			m := readMeta(path)
			if m.title == "" {
				m.title = filepath.Base(stem)
			}
			if m.artist == "" {
				m.artist = "Unknown Artist"
			}
			dir := filepath.Dir(path)
			if m.album == "" {
				m.album = filepath.Base(dir)
			}
			albumID := hash("album", strings.ToLower(m.album))
			if _, err := insertAlbum.ExecContext(ctx, albumID, m.album, findCover(dir), info.ModTime().Unix()); err != nil {
				return fmt.Errorf("index album %s: %w", m.album, err)
			}

			instrumental := ""
			if sib := stem + instrumentalTag + ext; fileExists(sib) {
				instrumental = sib
			}
			var lyrics any
			if b, err := os.ReadFile(stem + ".lyrics.json"); err == nil && json.Valid(b) {
				lyrics = string(b)
			}
			songID := hash(path)
			if _, err := insertSong.ExecContext(ctx, songID, m.title, m.artist, albumID, path, instrumental, lyrics, 0, info.ModTime().Unix()); err != nil {
				return fmt.Errorf("index %s: %w", path, err)
			}
			if m.genre != "" {
				catID := hash("category", strings.ToLower(m.genre))
				_, _ = insertCategory.ExecContext(ctx, catID, m.genre)
				_, _ = linkCategory.ExecContext(ctx, songID, catID)
			}
			count++
			return nil
		})
		if walkErr != nil {
			return 0, walkErr
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit scan: %w", err)
	}
	return count, nil
}

type meta struct {
	title, artist, album, genre string
}

func readMeta(path string) meta {
	f, err := os.Open(path)
	if err != nil {
		return meta{}
	}
	defer f.Close()
	m, err := tag.ReadFrom(f)
	if err != nil {
		return meta{}
	}
	return meta{
		title:  strings.TrimSpace(m.Title()),
		artist: strings.TrimSpace(m.Artist()),
		album:  strings.TrimSpace(m.Album()),
		genre:  strings.TrimSpace(m.Genre()),
	}
}

func findCover(dir string) string {
	for _, name := range coverNames {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (p *Provider) Health(ctx context.Context) (bool, string) {
	if p.db == nil {
		return false, "db not initialized"
	}
	if err := p.db.PingContext(ctx); err != nil {
		return false, err.Error()
	}
	return true, "ok"
}

const songColumns = `s.id,s.title,s.artist,s.audio_path,s.instrumental_path,s.lyrics_timed,s.duration_seconds,s.store_url,s.store_url_instrumental,s.created_at`

func scanSong(rows *sql.Rows) (provider.Track, error) {
	var (
		t       provider.Track
		lyrics  sql.NullString
		created int64
	)
	if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &t.VocalRef, &t.InstrumentalRef, &lyrics, &t.DurationSeconds, &t.StoreURL, &t.StoreURLInstrumental, &created); err != nil {
		return provider.Track{}, err
	}
	if lyrics.Valid && lyrics.String != "" {
		t.LyricsTimed = json.RawMessage(lyrics.String)
	}
	t.CreatedAt = time.Unix(created, 0)
	return t, nil
}

func (p *Provider) ListTracks(ctx context.Context, q provider.TrackQuery) ([]provider.Track, error) {
	query := `SELECT ` + songColumns + ` FROM songs s `
	var (
		args    []any
		clauses []string
		order   = `lower(s.title)`
	)
	switch {
	case q.AlbumID != "":
		clauses = append(clauses, "s.album_id=?")
		args = append(args, q.AlbumID)
	case q.CategoryID != "":
		query += `JOIN song_categories c ON c.song_id=s.id `
		clauses = append(clauses, "c.category_id=?")
		args = append(args, q.CategoryID)
	case q.PlaylistID != "":
		query += `JOIN playlist_songs ps ON ps.song_id=s.id `
		clauses = append(clauses, "ps.playlist_id=?")
		args = append(args, q.PlaylistID)
		order = `ps.song_order`
	case q.FavoritesOf != "":
		query += `JOIN user_favorite_songs f ON f.song_id=s.id `
		clauses = append(clauses, "f.user_id=?")
		args = append(args, q.FavoritesOf)
		order = `f.created_at`
	}
	if q.Search != "" {
		pattern := "%" + strings.ToLower(q.Search) + "%"
		clauses = append(clauses, "(lower(s.title) LIKE ? OR lower(s.artist) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	switch q.Sort {
	case provider.SortTitle:
		order = `lower(s.title)`
	case provider.SortCreated:
		order = `s.created_at`
	}
	if len(clauses) > 0 {
		query += "WHERE " + strings.Join(clauses, " AND ") + " "
	}
	query += "ORDER BY " + order + ", s.id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tracks []provider.Track
	for rows.Next() {
		t, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if q.Search != "" && q.Sort == provider.SortDefault {
		rankBySimilarity(tracks, q.Search)
	}
	return tracks, nil
}

// rankBySimilarity puts the closest title matches first.
func rankBySimilarity(tracks []provider.Track, query string) {
	metric := metrics.NewJaroWinkler()
	scores := make(map[string]float64, len(tracks))
	for _, t := range tracks {
		scores[t.ID] = max(
			strutil.Similarity(query, t.Title, metric),
			strutil.Similarity(query, t.Artist, metric),
		)
	}
	sort.SliceStable(tracks, func(i, j int) bool { return scores[tracks[i].ID] > scores[tracks[j].ID] })
}

func (p *Provider) ListAlbums(ctx context.Context) ([]provider.Album, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT a.id,a.name,a.cover_path,a.created_at,(SELECT COUNT(*) FROM songs s WHERE s.album_id=a.id) FROM albums a ORDER BY a.created_at, lower(a.name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []provider.Album
	for rows.Next() {
		var (
			a       provider.Album
			created int64
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.CoverPath, &created, &a.TrackCount); err != nil {
			return nil, err
		}
		a.CreatedAt = time.Unix(created, 0)
		items = append(items, a)
	}
	return items, rows.Err()
}

func (p *Provider) ListCategories(ctx context.Context) ([]provider.Category, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id,name,icon_path FROM categories ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []provider.Category
	for rows.Next() {
		var c provider.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.IconPath); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (p *Provider) ListPlaylists(ctx context.Context, userID string) ([]provider.Playlist, error) {
	if userID == "" {
		return nil, provider.ErrUnauthorized
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id,user_id,name,cover_color,created_at FROM playlists WHERE user_id=? ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []provider.Playlist
	for rows.Next() {
		var (
			pl      provider.Playlist
			created int64
		)
		if err := rows.Scan(&pl.ID, &pl.UserID, &pl.Name, &pl.CoverColor, &created); err != nil {
			return nil, err
		}
		pl.CreatedAt = time.Unix(created, 0)
		items = append(items, pl)
	}
	return items, rows.Err()
}

func (p *Provider) CreatePlaylist(ctx context.Context, userID, name, color string) (provider.Playlist, error) {
	if userID == "" {
		return provider.Playlist{}, provider.ErrUnauthorized
	}
	pl := provider.Playlist{ID: uuid.NewString(), UserID: userID, Name: name, CoverColor: color, CreatedAt: p.now()}
	_, err := p.db.ExecContext(ctx, `INSERT INTO playlists(id,user_id,name,cover_color,created_at) VALUES(?,?,?,?,?)`, pl.ID, userID, name, color, pl.CreatedAt.Unix())
	if err != nil {
		return provider.Playlist{}, fmt.Errorf("create playlist: %w", err)
	}
	return pl, nil
}

func (p *Provider) DeletePlaylist(ctx context.Context, playlistID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM playlists WHERE id=?`, playlistID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("playlist %s: %w", playlistID, provider.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_songs WHERE playlist_id=?`, playlistID); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Provider) AddToPlaylist(ctx context.Context, playlistID, trackID string, order int) error {
	_, err := p.db.ExecContext(ctx, `INSERT OR REPLACE INTO playlist_songs(playlist_id,song_id,song_order) VALUES(?,?,?)`, playlistID, trackID, order)
	return err
}

func (p *Provider) RemoveFromPlaylist(ctx context.Context, playlistID, trackID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM playlist_songs WHERE playlist_id=? AND song_id=?`, playlistID, trackID)
	return err
}

func (p *Provider) AddFavorite(ctx context.Context, userID, trackID string) error {
	_, err := p.db.ExecContext(ctx, `INSERT OR IGNORE INTO user_favorite_songs(user_id,song_id,created_at) VALUES(?,?,?)`, userID, trackID, p.now().UnixNano())
	return err
}

func (p *Provider) RemoveFavorite(ctx context.Context, userID, trackID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM user_favorite_songs WHERE user_id=? AND song_id=?`, userID, trackID)
	return err
}

// SignURL returns a file:// URL for an indexed file. The expires parameter
// only mirrors the hosted backend; nothing enforces it.
func (p *Provider) SignURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if path == "" || !p.underRoot(path) {
		return "", fmt.Errorf("sign url %q: %w", path, provider.ErrNotFound)
	}
	if !fileExists(path) {
		return "", fmt.Errorf("sign url %q: %w", path, provider.ErrNotFound)
	}
	u := url.URL{
		Scheme:   "file",
		Path:     path,
		RawQuery: url.Values{"expires": {strconv.FormatInt(p.now().Add(ttl).Unix(), 10)}}.Encode(),
	}
	return u.String(), nil
}

func (p *Provider) underRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range p.cfg.Roots {
		rel, err := filepath.Rel(root, clean)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (p *Provider) PublicURL(path string) string {
	if path == "" {
		return ""
	}
	return (&url.URL{Scheme: "file", Path: path}).String()
}

func (p *Provider) CurrentSession(ctx context.Context) (provider.Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.signedOut {
		return provider.Session{}, provider.ErrUnauthorized
	}
	return provider.Session{UserID: p.cfg.UserID, DisplayName: p.cfg.DisplayName}, nil
}

func (p *Provider) Profile(ctx context.Context, userID string) (provider.Profile, error) {
	if userID != p.cfg.UserID {
		return provider.Profile{}, fmt.Errorf("profile %s: %w", userID, provider.ErrNotFound)
	}
	return provider.Profile{ID: userID, SubscriptionTier: "local"}, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.signedOut = true
	p.mu.Unlock()
	return nil
}

// Close releases the index database.
func (p *Provider) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}
