// Package resolver turns backend-relative audio file references into
// time-limited playable URLs.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cadenza/cadenza/internal/provider"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrResolutionFailed is returned when a signed URL could not be issued.
var ErrResolutionFailed = errors.New("resolver: resolution failed")

const (
	DefaultTTL     = 5 * time.Minute
	DefaultTimeout = 10 * time.Second
	DefaultMargin  = time.Minute
)

// Resolved is a playable URL and the instant it stops being valid.
type Resolved struct {
	URL       string
	ExpiresAt time.Time
}

// Options configures the Resolver.
type Options struct {
	TTL     time.Duration
	Timeout time.Duration
	// Margin is the minimum validity a cached URL must have left to be reused.
	Margin time.Duration
	// CacheSize bounds the number of cached URLs. Zero or negative disables caching.
	CacheSize int
	Logger    *slog.Logger
	Now       func() time.Time
}

// Resolver issues signed URLs through a provider.Storage.
type Resolver struct {
	storage provider.Storage
	opts    Options
	cache   *expirable.LRU[string, Resolved]
}

func New(storage provider.Storage, opts Options) *Resolver {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Margin <= 0 {
		opts.Margin = DefaultMargin
	}
	// A margin that swallows the whole TTL would make every cached URL stale.
	if opts.Margin >= opts.TTL {
		opts.Margin = opts.TTL / 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Resolver{storage: storage, opts: opts}
	if opts.CacheSize > 0 {
		r.cache = expirable.NewLRU[string, Resolved](opts.CacheSize, nil, opts.TTL-opts.Margin)
	}
	return r
}

// Resolve returns a playable URL for ref. Every failure, including a timeout,
// wraps ErrResolutionFailed.
func (r *Resolver) Resolve(ctx context.Context, ref string) (Resolved, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Resolved{}, fmt.Errorf("%w: empty file reference", ErrResolutionFailed)
	}
	if res, ok := r.cached(ref); ok {
		r.opts.Logger.Debug("signed url cache hit", slog.String("ref", ref))
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	issued := r.opts.Now()
	url, err := r.storage.SignURL(ctx, ref, r.opts.TTL)
	if err != nil {
		r.opts.Logger.Warn("sign url failed", slog.String("ref", ref), slog.Any("err", err))
		return Resolved{}, fmt.Errorf("%w: %s: %w", ErrResolutionFailed, ref, err)
	}
	if url == "" {
		return Resolved{}, fmt.Errorf("%w: %s: backend returned empty url", ErrResolutionFailed, ref)
	}
	res := Resolved{URL: url, ExpiresAt: issued.Add(r.opts.TTL)}
	if r.cache != nil {
		r.cache.Add(ref, res)
	}
	return res, nil
}

func (r *Resolver) cached(ref string) (Resolved, bool) {
	if r.cache == nil {
		return Resolved{}, false
	}
	res, ok := r.cache.Get(ref)
	if !ok {
		return Resolved{}, false
	}
	if res.ExpiresAt.Sub(r.opts.Now()) <= r.opts.Margin {
		r.cache.Remove(ref)
		return Resolved{}, false
	}
	return res, true
}

// Invalidate drops any cached URL for ref, e.g. after the engine failed to open it.
func (r *Resolver) Invalidate(ref string) {
	if r.cache != nil {
		r.cache.Remove(ref)
	}
}
