package local

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cadenza/cadenza/internal/provider"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func newLibrary(t *testing.T) (*Provider, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Night Drive", "Blue Hour.mp3"), "fake audio")
	writeFile(t, filepath.Join(root, "Night Drive", "Blue Hour.instrumental.mp3"), "fake audio")
	writeFile(t, filepath.Join(root, "Night Drive", "Blue Hour.lyrics.json"), `[{"text":"hi","start":0,"end":400}]`)
	writeFile(t, filepath.Join(root, "Night Drive", "cover.jpg"), "img")
	writeFile(t, filepath.Join(root, "Morning", "Sunrise.mp3"), "fake audio")
	writeFile(t, filepath.Join(root, "Morning", "notes.txt"), "skip me")

	p := New()
	settings := map[string]any{
		"roots":        []any{root},
		"index_db":     filepath.Join(t.TempDir(), "index.sqlite"),
		"user_id":      "me",
		"display_name": "Me",
	}
	if err := p.Initialize(context.Background(), settings); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, root
}

func TestScanPairsInstrumental(t *testing.T) {
	p, root := newLibrary(t)
	ctx := context.Background()

	tracks, err := p.ListTracks(ctx, provider.TrackQuery{})
	if err != nil {
		t.Fatalf("list tracks: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks got %d: %+v", len(tracks), tracks)
	}
	blue := tracks[0]
	if blue.Title != "Blue Hour" || blue.Artist != "Unknown Artist" {
		t.Fatalf("unexpected track %+v", blue)
	}
	if blue.VocalRef != filepath.Join(root, "Night Drive", "Blue Hour.mp3") {
		t.Fatalf("unexpected vocal ref %q", blue.VocalRef)
	}
	if !blue.HasRendition(provider.Instrumental) || tracks[1].HasRendition(provider.Instrumental) {
		t.Fatalf("instrumental sibling not paired: %+v", tracks)
	}
	if len(blue.LyricsTimed) == 0 {
		t.Fatalf("lyrics sidecar not indexed")
	}

	albums, err := p.ListAlbums(ctx)
	if err != nil || len(albums) != 2 {
		t.Fatalf("list albums: %+v %v", albums, err)
	}
	for _, a := range albums {
		if a.TrackCount != 1 {
			t.Fatalf("album %s has %d tracks", a.Name, a.TrackCount)
		}
		if a.Name == "Night Drive" && !strings.HasSuffix(a.CoverPath, "cover.jpg") {
			t.Fatalf("cover not found for %+v", a)
		}
	}

	byAlbum, err := p.ListTracks(ctx, provider.TrackQuery{AlbumID: albums[0].ID})
	if err != nil || len(byAlbum) != 1 {
		t.Fatalf("album filter: %+v %v", byAlbum, err)
	}

	n, err := p.Scan(ctx)
	if err != nil || n != 2 {
		t.Fatalf("rescan: %d %v", n, err)
	}
}

func TestSearchRanking(t *testing.T) {
	p, _ := newLibrary(t)
	tracks, err := p.ListTracks(context.Background(), provider.TrackQuery{Search: "sun"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "Sunrise" {
		t.Fatalf("unexpected results %+v", tracks)
	}
	tracks, err = p.ListTracks(context.Background(), provider.TrackQuery{Search: "zzz"})
	if err != nil || len(tracks) != 0 {
		t.Fatalf("expected no results, got %+v %v", tracks, err)
	}
}

func TestSignURL(t *testing.T) {
	p, root := newLibrary(t)
	p.now = func() time.Time { return time.Unix(1000, 0) }
	ctx := context.Background()
	path := filepath.Join(root, "Morning", "Sunrise.mp3")

	raw, err := p.SignURL(ctx, path, 5*time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "file" || u.Path != path || u.Query().Get("expires") != "1300" {
		t.Fatalf("unexpected url %s", raw)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := p.SignURL(ctx, path, time.Minute); !errors.Is(err, provider.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for removed file, got %v", err)
	}
	outside := filepath.Join(t.TempDir(), "x.mp3")
	writeFile(t, outside, "x")
	if _, err := p.SignURL(ctx, outside, time.Minute); !errors.Is(err, provider.ErrNotFound) {
		t.Fatalf("expected ErrNotFound outside roots, got %v", err)
	}
}

func TestPlaylistsAndFavorites(t *testing.T) {
	p, _ := newLibrary(t)
	ctx := context.Background()
	tracks, err := p.ListTracks(ctx, provider.TrackQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	pl, err := p.CreatePlaylist(ctx, "me", "Mix", "#123456")
	if err != nil || pl.ID == "" {
		t.Fatalf("create: %+v %v", pl, err)
	}
	if err := p.AddToPlaylist(ctx, pl.ID, tracks[1].ID, 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := p.AddToPlaylist(ctx, pl.ID, tracks[0].ID, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := p.ListTracks(ctx, provider.TrackQuery{PlaylistID: pl.ID})
	if err != nil || len(got) != 2 || got[0].ID != tracks[1].ID {
		t.Fatalf("playlist order: %+v %v", got, err)
	}
	if err := p.RemoveFromPlaylist(ctx, pl.ID, tracks[1].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, _ = p.ListTracks(ctx, provider.TrackQuery{PlaylistID: pl.ID})
	if len(got) != 1 {
		t.Fatalf("expected 1 track after removal, got %d", len(got))
	}

	lists, err := p.ListPlaylists(ctx, "me")
	if err != nil || len(lists) != 1 || lists[0].CoverColor != "#123456" {
		t.Fatalf("list playlists: %+v %v", lists, err)
	}
	if err := p.DeletePlaylist(ctx, pl.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := p.DeletePlaylist(ctx, pl.ID); !errors.Is(err, provider.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	if err := p.AddFavorite(ctx, "me", tracks[0].ID); err != nil {
		t.Fatalf("favorite: %v", err)
	}
	favs, err := p.ListTracks(ctx, provider.TrackQuery{FavoritesOf: "me"})
	if err != nil || len(favs) != 1 || favs[0].ID != tracks[0].ID {
		t.Fatalf("favorites: %+v %v", favs, err)
	}
	if err := p.RemoveFavorite(ctx, "me", tracks[0].ID); err != nil {
		t.Fatalf("unfavorite: %v", err)
	}
	favs, _ = p.ListTracks(ctx, provider.TrackQuery{FavoritesOf: "me"})
	if len(favs) != 0 {
		t.Fatalf("favorite not removed")
	}
}

func TestLocalSession(t *testing.T) {
	p, _ := newLibrary(t)
	ctx := context.Background()
	s, err := p.CurrentSession(ctx)
	if err != nil || s.UserID != "me" || s.DisplayName != "Me" {
		t.Fatalf("session: %+v %v", s, err)
	}
	if _, err := p.Profile(ctx, "other"); !errors.Is(err, provider.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := p.CurrentSession(ctx); !errors.Is(err, provider.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after sign out, got %v", err)
	}
}

func TestInitializeRequiresRoots(t *testing.T) {
	if err := New().Initialize(context.Background(), map[string]any{}); !errors.Is(err, provider.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
