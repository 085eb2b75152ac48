// Package supabase talks to a Supabase project: PostgREST tables for the
// catalog and library, object storage for audio and art, GoTrue for auth.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cadenza/cadenza/internal/provider"
	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL     string
	AnonKey     string
	AccessToken string
	AudioBucket string
	ArtBucket   string
	// RequestsPerSecond paces every call made to the project.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

type Provider struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time

	mu    sync.RWMutex
	token string
}

var _ provider.Backend = (*Provider)(nil)

func New() *Provider {
	return &Provider{now: time.Now}
}

func (p *Provider) ID() string   { return "supabase" }
func (p *Provider) Name() string { return "Supabase" }

func (p *Provider) Initialize(ctx context.Context, profileCfg any) error {
	raw, ok := profileCfg.(map[string]any)
	if !ok {
		return provider.ErrInvalidConfig
	}
	cfg, err := parseConfig(raw)
	if err != nil {
		return err
	}
	p.cfg = cfg
	if cfg.HTTPClient != nil {
		p.client = cfg.HTTPClient
	} else {
		p.client = &http.Client{Timeout: 8 * time.Second}
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	p.mu.Lock()
	p.token = cfg.AccessToken
	p.mu.Unlock()
	return nil
}

func parseConfig(raw map[string]any) (Config, error) {
	cfg := Config{AudioBucket: "song-audio", ArtBucket: "covers", RequestsPerSecond: 10}
	if v, ok := raw["base_url"].(string); ok {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	cfg.AnonKey = settingOrEnv(raw, "anon_key")
	cfg.AccessToken = settingOrEnv(raw, "access_token")
	if v, ok := raw["audio_bucket"].(string); ok && v != "" {
		cfg.AudioBucket = v
	}
	if v, ok := raw["art_bucket"].(string); ok && v != "" {
		cfg.ArtBucket = v
	}
	switch v := raw["requests_per_second"].(type) {
	case int64:
		if v > 0 {
			cfg.RequestsPerSecond = float64(v)
		}
	case float64:
		if v > 0 {
			cfg.RequestsPerSecond = v
		}
	}
	if cfg.BaseURL == "" || cfg.AnonKey == "" {
		return Config{}, provider.ErrInvalidConfig
	}
	return cfg, nil
}

// settingOrEnv reads key, falling back to the variable named by key_env.
func settingOrEnv(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok && v != "" {
		return v
	}
	if name, ok := raw[key+"_env"].(string); ok && name != "" {
		return os.Getenv(name)
	}
	return ""
}

func (p *Provider) Health(ctx context.Context) (bool, string) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/rest/v1/", nil)
	p.authHeader(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	resp.Body.Close()
	return resp.StatusCode < 500, resp.Status
}

func (p *Provider) bearer() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token != "" {
		return p.token
	}
	return p.cfg.AnonKey
}

func (p *Provider) authHeader(req *http.Request) {
	req.Header.Set("apikey", p.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+p.bearer())
}

// call issues one paced request. body, when non-nil, is sent as JSON; out,
// when non-nil, receives the decoded response.
func (p *Provider) call(ctx context.Context, method, path string, query url.Values, body any, out any, prefer string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", provider.ErrTemporary, err)
	}
	u := p.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	p.authHeader(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return mapHTTPError(err)
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// statusError maps an HTTP status to a provider sentinel, keeping the
// backend's message when it sent one.
func statusError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(b, &apiErr)
	msg := lo.CoalesceOrEmpty(apiErr.Message, apiErr.Error, resp.Status)

	var base error
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		base = provider.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		base = provider.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		base = provider.ErrRateLimited
	case resp.StatusCode >= 500:
		base = provider.ErrTemporary
	default:
		return fmt.Errorf("http status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: %s", base, msg)
}

// mapHTTPError classifies transport failures. Refused or unresolvable
// connections mean the backend is offline; timeouts are worth a retry.
func mapHTTPError(err error) error {
	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", provider.ErrTemporary, err)
	case errors.As(err, &dnsErr), errors.As(err, &opErr) && opErr.Op == "dial":
		return fmt.Errorf("%w: %w", provider.ErrOffline, err)
	}
	return err
}

type songRow struct {
	ID                   string          `json:"id"`
	CreatedAt            time.Time       `json:"created_at"`
	Title                string          `json:"title"`
	Artist               string          `json:"artist"`
	AudioFilePath        *string         `json:"audio_file_path"`
	InstrumentalFilePath *string         `json:"instrumental_file_path"`
	LyricsTimed          json.RawMessage `json:"lyrics_timed"`
	DurationSeconds      *int            `json:"duration_seconds"`
	StoreURL             *string         `json:"store_url"`
	StoreURLInstrumental *string         `json:"store_url_instrumental"`
}

func (r songRow) track() provider.Track {
	lyrics := r.LyricsTimed
	if string(lyrics) == "null" {
		lyrics = nil
	}
	return provider.Track{
		ID:                   r.ID,
		Title:                r.Title,
		Artist:               r.Artist,
		VocalRef:             lo.FromPtr(r.AudioFilePath),
		InstrumentalRef:      lo.FromPtr(r.InstrumentalFilePath),
		DurationSeconds:      lo.FromPtr(r.DurationSeconds),
		StoreURL:             lo.FromPtr(r.StoreURL),
		StoreURLInstrumental: lo.FromPtr(r.StoreURLInstrumental),
		LyricsTimed:          lyrics,
		CreatedAt:            r.CreatedAt,
	}
}

// joinRow is one row of a link table with the song embedded.
type joinRow struct {
	Songs *songRow `json:"songs"`
}

func (p *Provider) ListTracks(ctx context.Context, q provider.TrackQuery) ([]provider.Track, error) {
	var (
		table string
		query = url.Values{}
	)
	switch {
	case q.AlbumID != "":
		table = "song_albums"
		query.Set("album_id", "eq."+q.AlbumID)
	case q.CategoryID != "":
		table = "song_categories"
		query.Set("category_id", "eq."+q.CategoryID)
	case q.PlaylistID != "":
		table = "playlist_songs"
		query.Set("playlist_id", "eq."+q.PlaylistID)
		query.Set("order", "song_order.asc")
	case q.FavoritesOf != "":
		table = "user_favorite_songs"
		query.Set("user_id", "eq."+q.FavoritesOf)
	}

	var tracks []provider.Track
	if table != "" {
		query.Set("select", "songs(*)")
		var rows []joinRow
		if err := p.call(ctx, http.MethodGet, "/rest/v1/"+table, query, nil, &rows, ""); err != nil {
			return nil, err
		}
		tracks = lo.FilterMap(rows, func(r joinRow, _ int) (provider.Track, bool) {
			if r.Songs == nil {
				return provider.Track{}, false
			}
			return r.Songs.track(), true
		})
		if q.Search != "" {
			needle := strings.ToLower(q.Search)
			tracks = lo.Filter(tracks, func(t provider.Track, _ int) bool {
				return strings.Contains(strings.ToLower(t.Title), needle)
			})
		}
	} else {
		query.Set("select", "*")
		if q.Search != "" {
			query.Set("title", "ilike.%"+q.Search+"%")
		}
		switch q.Sort {
		case provider.SortCreated:
			query.Set("order", "created_at.asc")
		default:
			query.Set("order", "title.asc")
		}
		var rows []songRow
		if err := p.call(ctx, http.MethodGet, "/rest/v1/songs", query, nil, &rows, ""); err != nil {
			return nil, err
		}
		tracks = lo.Map(rows, func(r songRow, _ int) provider.Track { return r.track() })
	}
	sortTracks(tracks, q.Sort)
	return tracks, nil
}

func sortTracks(tracks []provider.Track, s provider.Sort) {
	switch s {
	case provider.SortTitle:
		sort.SliceStable(tracks, func(i, j int) bool {
			return strings.ToLower(tracks[i].Title) < strings.ToLower(tracks[j].Title)
		})
	case provider.SortCreated:
		sort.SliceStable(tracks, func(i, j int) bool { return tracks[i].CreatedAt.Before(tracks[j].CreatedAt) })
	}
}

type albumRow struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CoverImagePath *string   `json:"cover_image_path"`
	CreatedAt      time.Time `json:"created_at"`
	SongAlbums     []struct {
		Count int `json:"count"`
	} `json:"song_albums"`
}

func (p *Provider) ListAlbums(ctx context.Context) ([]provider.Album, error) {
	query := url.Values{"select": {"*,song_albums(count)"}, "order": {"created_at.asc"}}
	var rows []albumRow
	if err := p.call(ctx, http.MethodGet, "/rest/v1/albums", query, nil, &rows, ""); err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r albumRow, _ int) provider.Album {
		a := provider.Album{ID: r.ID, Name: r.Name, CoverPath: lo.FromPtr(r.CoverImagePath), CreatedAt: r.CreatedAt}
		if len(r.SongAlbums) > 0 {
			a.TrackCount = r.SongAlbums[0].Count
		}
		return a
	}), nil
}

type categoryRow struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	IconImagePath *string `json:"icon_image_path"`
}

func (p *Provider) ListCategories(ctx context.Context) ([]provider.Category, error) {
	query := url.Values{"select": {"*"}, "order": {"name.asc"}}
	var rows []categoryRow
	if err := p.call(ctx, http.MethodGet, "/rest/v1/categories", query, nil, &rows, ""); err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r categoryRow, _ int) provider.Category {
		return provider.Category{ID: r.ID, Name: r.Name, IconPath: lo.FromPtr(r.IconImagePath)}
	}), nil
}

type playlistRow struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	CoverColor *string   `json:"cover_color"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r playlistRow) playlist() provider.Playlist {
	return provider.Playlist{ID: r.ID, UserID: r.UserID, Name: r.Name, CoverColor: lo.FromPtr(r.CoverColor), CreatedAt: r.CreatedAt}
}

func (p *Provider) ListPlaylists(ctx context.Context, userID string) ([]provider.Playlist, error) {
	if userID == "" {
		return nil, provider.ErrUnauthorized
	}
	query := url.Values{"select": {"*"}, "user_id": {"eq." + userID}, "order": {"created_at.asc"}}
	var rows []playlistRow
	if err := p.call(ctx, http.MethodGet, "/rest/v1/playlists", query, nil, &rows, ""); err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r playlistRow, _ int) provider.Playlist { return r.playlist() }), nil
}

func (p *Provider) CreatePlaylist(ctx context.Context, userID, name, color string) (provider.Playlist, error) {
	body := []map[string]any{{"name": name, "user_id": userID, "cover_color": color}}
	var rows []playlistRow
	if err := p.call(ctx, http.MethodPost, "/rest/v1/playlists", nil, body, &rows, "return=representation"); err != nil {
		return provider.Playlist{}, err
	}
	if len(rows) == 0 {
		return provider.Playlist{}, fmt.Errorf("create playlist: %w", provider.ErrNotFound)
	}
	return rows[0].playlist(), nil
}

func (p *Provider) DeletePlaylist(ctx context.Context, playlistID string) error {
	query := url.Values{"id": {"eq." + playlistID}}
	return p.call(ctx, http.MethodDelete, "/rest/v1/playlists", query, nil, nil, "")
}

func (p *Provider) AddToPlaylist(ctx context.Context, playlistID, trackID string, order int) error {
	body := map[string]any{"playlist_id": playlistID, "song_id": trackID, "song_order": order}
	return p.call(ctx, http.MethodPost, "/rest/v1/playlist_songs", nil, body, nil, "return=minimal")
}

func (p *Provider) RemoveFromPlaylist(ctx context.Context, playlistID, trackID string) error {
	query := url.Values{"playlist_id": {"eq." + playlistID}, "song_id": {"eq." + trackID}}
	return p.call(ctx, http.MethodDelete, "/rest/v1/playlist_songs", query, nil, nil, "")
}

func (p *Provider) AddFavorite(ctx context.Context, userID, trackID string) error {
	body := map[string]any{"user_id": userID, "song_id": trackID}
	return p.call(ctx, http.MethodPost, "/rest/v1/user_favorite_songs", nil, body, nil, "return=minimal")
}

func (p *Provider) RemoveFavorite(ctx context.Context, userID, trackID string) error {
	query := url.Values{"user_id": {"eq." + userID}, "song_id": {"eq." + trackID}}
	return p.call(ctx, http.MethodDelete, "/rest/v1/user_favorite_songs", query, nil, nil, "")
}

func escapePath(path string) string {
	parts := strings.Split(strings.TrimLeft(path, "/"), "/")
	return strings.Join(lo.Map(parts, func(s string, _ int) string { return url.PathEscape(s) }), "/")
}

// SignURL asks storage for a signed URL to a private audio object.
func (p *Provider) SignURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("sign url: %w", provider.ErrNotFound)
	}
	secs := int(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	var out struct {
		SignedURL string `json:"signedURL"`
	}
	endpoint := "/storage/v1/object/sign/" + url.PathEscape(p.cfg.AudioBucket) + "/" + escapePath(path)
	if err := p.call(ctx, http.MethodPost, endpoint, nil, map[string]int{"expiresIn": secs}, &out, ""); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("sign url %s: empty response: %w", path, provider.ErrTemporary)
	}
	if strings.HasPrefix(out.SignedURL, "http://") || strings.HasPrefix(out.SignedURL, "https://") {
		return out.SignedURL, nil
	}
	return p.cfg.BaseURL + "/storage/v1" + out.SignedURL, nil
}

// PublicURL returns the public URL of a cover-art object.
func (p *Provider) PublicURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return p.cfg.BaseURL + "/storage/v1/object/public/" + url.PathEscape(p.cfg.ArtBucket) + "/" + escapePath(path)
}

// CurrentSession reads the signed-in user from the access token's claims.
// The signature is checked by the backend on every call, not here.
func (p *Provider) CurrentSession(ctx context.Context) (provider.Session, error) {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	if token == "" {
		return provider.Session{}, provider.ErrUnauthorized
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return provider.Session{}, fmt.Errorf("%w: %w", provider.ErrUnauthorized, err)
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return provider.Session{}, fmt.Errorf("%w: token has no subject", provider.ErrUnauthorized)
	}
	s := provider.Session{UserID: sub}
	s.Email, _ = claims["email"].(string)
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		s.DisplayName, _ = meta["display_name"].(string)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
		if !s.ExpiresAt.After(p.now()) {
			return provider.Session{}, fmt.Errorf("%w: session expired", provider.ErrUnauthorized)
		}
	}
	return s, nil
}

type profileRow struct {
	ID               string  `json:"id"`
	SubscriptionTier *string `json:"subscription_tier"`
}

func (p *Provider) Profile(ctx context.Context, userID string) (provider.Profile, error) {
	query := url.Values{"select": {"*"}, "id": {"eq." + userID}}
	var rows []profileRow
	if err := p.call(ctx, http.MethodGet, "/rest/v1/profiles", query, nil, &rows, ""); err != nil {
		return provider.Profile{}, err
	}
	if len(rows) == 0 {
		return provider.Profile{}, fmt.Errorf("profile %s: %w", userID, provider.ErrNotFound)
	}
	return provider.Profile{ID: rows[0].ID, SubscriptionTier: lo.FromPtr(rows[0].SubscriptionTier)}, nil
}

// SignOut revokes the session server-side and forgets the token.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	if token == "" {
		return nil
	}
	if err := p.call(ctx, http.MethodPost, "/auth/v1/logout", nil, nil, nil, ""); err != nil && !provider.IsUnauthorized(err) {
		return fmt.Errorf("sign out: %w", err)
	}
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
	return nil
}
