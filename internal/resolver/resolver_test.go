package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cadenza/cadenza/internal/provider"
)

type fakeStorage struct {
	mu    sync.Mutex
	calls int
	err   error
	block bool
}

func (s *fakeStorage) SignURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	err := s.err
	block := s.block
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://cdn.test/%s?token=%d&ttl=%d", path, n, int(ttl.Seconds())), nil
}

func (s *fakeStorage) PublicURL(path string) string { return "https://cdn.test/public/" + path }

func (s *fakeStorage) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestResolveIssuesURL(t *testing.T) {
	st := &fakeStorage{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := New(st, Options{Now: func() time.Time { return now }})

	res, err := r.Resolve(context.Background(), "songs/a.mp3")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.URL != "https://cdn.test/songs/a.mp3?token=1&ttl=300" {
		t.Fatalf("unexpected url %s", res.URL)
	}
	if !res.ExpiresAt.Equal(now.Add(DefaultTTL)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}
	// Without a cache every call mints a fresh URL.
	res2, _ := r.Resolve(context.Background(), "songs/a.mp3")
	if res2.URL == res.URL {
		t.Fatalf("expected fresh url without cache")
	}
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		st   *fakeStorage
	}{
		{name: "empty ref", ref: " ", st: &fakeStorage{}},
		{name: "denied", ref: "songs/a.mp3", st: &fakeStorage{err: provider.ErrUnauthorized}},
		{name: "missing", ref: "songs/none.mp3", st: &fakeStorage{err: provider.ErrNotFound}},
		{name: "timeout", ref: "songs/slow.mp3", st: &fakeStorage{block: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.st, Options{Timeout: 20 * time.Millisecond})
			_, err := r.Resolve(context.Background(), tt.ref)
			if !errors.Is(err, ErrResolutionFailed) {
				t.Fatalf("expected ErrResolutionFailed, got %v", err)
			}
		})
	}
}

func TestResolveKeepsBackendCause(t *testing.T) {
	r := New(&fakeStorage{err: provider.ErrNotFound}, Options{})
	_, err := r.Resolve(context.Background(), "songs/x.mp3")
	if !provider.IsNotFound(err) {
		t.Fatalf("expected backend cause to be preserved, got %v", err)
	}
}

func TestMarginDefaults(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		in   time.Duration
		want time.Duration
	}{
		{"unset", 5 * time.Minute, 0, DefaultMargin},
		{"kept", 5 * time.Minute, 2 * time.Minute, 2 * time.Minute},
		{"default too long for ttl", 30 * time.Second, 0, 6 * time.Second},
		{"equal to ttl", time.Minute, time.Minute, 12 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(nil, Options{TTL: tt.ttl, Margin: tt.in})
			if r.opts.Margin != tt.want {
				t.Fatalf("margin %v, want %v", r.opts.Margin, tt.want)
			}
		})
	}
}

func TestResolveCacheHonoursMargin(t *testing.T) {
	st := &fakeStorage{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := New(st, Options{CacheSize: 8, TTL: 5 * time.Minute, Margin: time.Minute, Now: clock})

	first, err := r.Resolve(context.Background(), "songs/a.mp3")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, _ := r.Resolve(context.Background(), "songs/a.mp3")
	if second.URL != first.URL || st.callCount() != 1 {
		t.Fatalf("expected cached url, calls=%d", st.callCount())
	}

	// Inside the safety margin the cached URL must not be handed out.
	now = now.Add(4*time.Minute + 30*time.Second)
	third, _ := r.Resolve(context.Background(), "songs/a.mp3")
	if third.URL == first.URL || st.callCount() != 2 {
		t.Fatalf("expected re-issue near expiry, calls=%d", st.callCount())
	}

	r.Invalidate("songs/a.mp3")
	if _, err := r.Resolve(context.Background(), "songs/a.mp3"); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if st.callCount() != 3 {
		t.Fatalf("expected invalidate to force a new url, calls=%d", st.callCount())
	}
}
