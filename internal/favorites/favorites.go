// Package favorites keeps the signed-in user's favorite track ids in memory,
// mirroring every change to the backend first.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cadenza/cadenza/internal/provider"
	"github.com/samber/lo"
)

var ErrSignedOut = errors.New("favorites: no signed-in user")

// Backend is the subset of provider.Backend the store needs.
type Backend interface {
	ListTracks(ctx context.Context, q provider.TrackQuery) ([]provider.Track, error)
	AddFavorite(ctx context.Context, userID, trackID string) error
	RemoveFavorite(ctx context.Context, userID, trackID string) error
}

type Store struct {
	backend Backend

	mu     sync.RWMutex
	userID string
	ids    []string
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Load replaces the set with userID's favorites. An empty userID clears it.
// On failure the previous set is kept.
func (s *Store) Load(ctx context.Context, userID string) error {
	if userID == "" {
		s.mu.Lock()
		s.userID, s.ids = "", nil
		s.mu.Unlock()
		return nil
	}
	tracks, err := s.backend.ListTracks(ctx, provider.TrackQuery{FavoritesOf: userID})
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}
	ids := lo.Uniq(lo.Map(tracks, func(t provider.Track, _ int) string { return t.ID }))
	s.mu.Lock()
	s.userID, s.ids = userID, ids
	s.mu.Unlock()
	return nil
}

func (s *Store) Add(ctx context.Context, trackID string) error {
	userID := s.user()
	if userID == "" {
		return ErrSignedOut
	}
	if s.IsFavorite(trackID) {
		return nil
	}
	if err := s.backend.AddFavorite(ctx, userID, trackID); err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	s.mu.Lock()
	if !lo.Contains(s.ids, trackID) {
		s.ids = append(s.ids, trackID)
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Remove(ctx context.Context, trackID string) error {
	userID := s.user()
	if userID == "" {
		return ErrSignedOut
	}
	if err := s.backend.RemoveFavorite(ctx, userID, trackID); err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	s.mu.Lock()
	s.ids = lo.Without(s.ids, trackID)
	s.mu.Unlock()
	return nil
}

// Toggle flips trackID and reports whether it is now a favorite.
func (s *Store) Toggle(ctx context.Context, trackID string) (bool, error) {
	if s.IsFavorite(trackID) {
		return false, s.Remove(ctx, trackID)
	}
	if err := s.Add(ctx, trackID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) IsFavorite(trackID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Contains(s.ids, trackID)
}

// IDs returns the favorite ids in the order they were added.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *Store) user() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}
