package favorites

import (
	"context"
	"errors"
	"testing"

	"github.com/cadenza/cadenza/internal/provider"
)

type fakeBackend struct {
	favs    map[string][]string
	listErr error
	addErr  error
	removed []string
}

func (f *fakeBackend) ListTracks(ctx context.Context, q provider.TrackQuery) ([]provider.Track, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []provider.Track
	for _, id := range f.favs[q.FavoritesOf] {
		out = append(out, provider.Track{ID: id})
	}
	return out, nil
}

func (f *fakeBackend) AddFavorite(ctx context.Context, userID, trackID string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.favs[userID] = append(f.favs[userID], trackID)
	return nil
}

func (f *fakeBackend) RemoveFavorite(ctx context.Context, userID, trackID string) error {
	f.removed = append(f.removed, trackID)
	return nil
}

func TestLoadAndToggle(t *testing.T) {
	backend := &fakeBackend{favs: map[string][]string{"u1": {"a", "b", "a"}}}
	s := New(backend)
	ctx := context.Background()

	if err := s.Load(ctx, "u1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ids := s.IDs(); len(ids) != 2 || !s.IsFavorite("a") || s.IsFavorite("c") {
		t.Fatalf("unexpected ids %v", ids)
	}

	on, err := s.Toggle(ctx, "c")
	if err != nil || !on || !s.IsFavorite("c") {
		t.Fatalf("toggle on: %v %v", on, err)
	}
	on, err = s.Toggle(ctx, "a")
	if err != nil || on || s.IsFavorite("a") {
		t.Fatalf("toggle off: %v %v", on, err)
	}
	if len(backend.removed) != 1 || backend.removed[0] != "a" {
		t.Fatalf("backend not told about removal: %v", backend.removed)
	}
}

func TestFailuresKeepSet(t *testing.T) {
	backend := &fakeBackend{favs: map[string][]string{"u1": {"a"}}}
	s := New(backend)
	ctx := context.Background()
	if err := s.Load(ctx, "u1"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	backend.addErr = provider.ErrUnauthorized
	if err := s.Add(ctx, "z"); !errors.Is(err, provider.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if s.IsFavorite("z") {
		t.Fatalf("failed add changed the set")
	}

	backend.listErr = provider.ErrTemporary
	if err := s.Load(ctx, "u1"); !errors.Is(err, provider.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if !s.IsFavorite("a") {
		t.Fatalf("failed reload dropped the set")
	}
}

func TestSignedOut(t *testing.T) {
	s := New(&fakeBackend{favs: map[string][]string{}})
	ctx := context.Background()
	if err := s.Add(ctx, "a"); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("expected ErrSignedOut, got %v", err)
	}
	if err := s.Load(ctx, ""); err != nil || len(s.IDs()) != 0 {
		t.Fatalf("empty user should clear: %v", err)
	}
}
