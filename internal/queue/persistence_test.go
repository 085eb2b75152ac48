package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cadenza/cadenza/internal/provider"
)

func openStore(t *testing.T) *PersistenceStore {
	t.Helper()
	store, err := NewPersistenceStore(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("NewPersistenceStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPersistenceSaveLoad(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	tracks := []provider.Track{
		{ID: "t1", Title: "Track 1", Artist: "Artist 1", VocalRef: "a/1.mp3"},
		{ID: "t2", Title: "Track 2", Artist: "Artist 2", VocalRef: "a/2.mp3", InstrumentalRef: "a/2i.mp3"},
		{ID: "t3", Title: "Track 3", Artist: "Artist 3", VocalRef: "a/3.mp3"},
	}
	err := store.Save(ctx, Saved{
		Tracks:    tracks,
		Index:     1,
		Rendition: provider.Instrumental,
		ArtURL:    "https://cdn.example/cover.jpg",
		Color:     "#336699",
		ProfileID: "home",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	result, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(result.Tracks) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(result.Tracks))
	}
	if result.Index != 1 {
		t.Errorf("expected current index 1, got %d", result.Index)
	}
	if result.Rendition != provider.Instrumental {
		t.Errorf("expected instrumental, got %q", result.Rendition)
	}
	if result.ArtURL != "https://cdn.example/cover.jpg" || result.Color != "#336699" {
		t.Errorf("art/color mismatch: %q %q", result.ArtURL, result.Color)
	}
	if result.ProfileID != "home" {
		t.Errorf("expected profile 'home', got %q", result.ProfileID)
	}
	if result.SavedAt.IsZero() {
		t.Errorf("expected saved_at to be stamped")
	}
	if result.Tracks[1].InstrumentalRef != "a/2i.mp3" || result.Tracks[0].Title != "Track 1" {
		t.Errorf("track data mismatch: %+v", result.Tracks)
	}
}

func TestPersistenceEmptyStore(t *testing.T) {
	store := openStore(t)
	result, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(result.Tracks) != 0 {
		t.Errorf("expected 0 tracks, got %d", len(result.Tracks))
	}
	if result.Index != -1 {
		t.Errorf("expected current index -1, got %d", result.Index)
	}
	if result.Rendition != provider.Vocal {
		t.Errorf("expected vocal default, got %q", result.Rendition)
	}
}

func TestPersistenceClear(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, Saved{Tracks: []provider.Track{{ID: "t1"}}, Index: 0, Color: "#fff"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	result, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(result.Tracks) != 0 || result.Index != -1 || result.Color != "" {
		t.Errorf("expected empty state after clear, got %+v", result)
	}
}

func TestPersistenceInvalidIndex(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, Saved{Tracks: []provider.Track{{ID: "t1"}, {ID: "t2"}}, Index: 5}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	result, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.Index != 1 {
		t.Errorf("expected clamped index 1, got %d", result.Index)
	}
}

func TestPersistenceInvalidRenditionFallsBack(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, Saved{Tracks: []provider.Track{{ID: "t1"}}, Index: 0, Rendition: "karaoke"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	result, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.Rendition != provider.Vocal {
		t.Errorf("expected vocal, got %q", result.Rendition)
	}
}

func TestPersistenceDefaultPath(t *testing.T) {
	if os.Getenv("HOME") == "" && os.Getenv("USERPROFILE") == "" && os.Getenv("XDG_CONFIG_HOME") == "" {
		t.Skip("no home directory")
	}

	path, err := defaultQueueDBPath()
	if err != nil {
		t.Fatalf("defaultQueueDBPath: %v", err)
	}
	if filepath.Base(path) != "queue.db" {
		t.Errorf("expected queue.db, got %s", filepath.Base(path))
	}
}
