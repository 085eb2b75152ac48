// Package audiotest provides an in-memory audio.Output for tests.
package audiotest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cadenza/cadenza/internal/audio"
)

// Output is a fake audio.Output. It tracks how many sources are live so tests
// can assert that a source is always released before the next one is loaded.
type Output struct {
	// DefaultDuration is reported for URLs without an entry in Durations.
	DefaultDuration time.Duration
	// Durations maps a URL to the duration reported on Load.
	Durations map[string]time.Duration
	// LoadHook, when set, runs before a Load completes; a non-nil error fails the load.
	LoadHook func(ctx context.Context, url string) error

	mu       sync.Mutex
	url      string
	loaded   bool
	playing  bool
	paused   bool
	position time.Duration
	duration time.Duration
	onDone   func(error)

	loads    []string
	releases int
	live     int
	maxLive  int
	seeks    []time.Duration
}

var _ audio.Output = (*Output)(nil)

func New() *Output {
	return &Output{DefaultDuration: 3 * time.Minute, Durations: map[string]time.Duration{}}
}

func (o *Output) Load(ctx context.Context, url string) (time.Duration, error) {
	o.mu.Lock()
	if o.loaded {
		o.mu.Unlock()
		return 0, audio.ErrBusy
	}
	hook := o.LoadHook
	o.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, url); err != nil {
			return 0, fmt.Errorf("%w: %w", audio.ErrLoadFailed, err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loaded {
		return 0, audio.ErrBusy
	}
	d, ok := o.Durations[url]
	if !ok {
		d = o.DefaultDuration
	}
	o.url = url
	o.loaded = true
	o.playing = false
	o.paused = false
	o.position = 0
	o.duration = d
	o.loads = append(o.loads, url)
	o.live++
	if o.live > o.maxLive {
		o.maxLive = o.live
	}
	return d, nil
}

func (o *Output) Play(onDone func(error)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.loaded {
		return audio.ErrNotLoaded
	}
	o.onDone = onDone
	o.playing = true
	o.paused = false
	return nil
}

func (o *Output) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loaded {
		o.paused = true
	}
}

func (o *Output) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loaded {
		o.paused = false
	}
}

func (o *Output) Seek(offset time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.loaded {
		return nil
	}
	o.position = offset
	o.seeks = append(o.seeks, offset)
	return nil
}

func (o *Output) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.position
}

func (o *Output) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.loaded {
		return 0
	}
	return o.duration
}

func (o *Output) Loaded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loaded
}

func (o *Output) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loaded {
		o.live--
		o.releases++
	}
	o.loaded = false
	o.playing = false
	o.paused = false
	o.onDone = nil
	o.url = ""
	o.position = 0
	o.duration = 0
}

// Finish simulates the end of the current stream. It runs the completion
// callback synchronously with err and reports whether one was pending.
func (o *Output) Finish(err error) bool {
	o.mu.Lock()
	cb := o.onDone
	o.onDone = nil
	if cb != nil {
		o.playing = false
		o.position = o.duration
	}
	o.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(err)
	return true
}

// SetPosition moves the simulated play head.
func (o *Output) SetPosition(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.position = d
}

// URL returns the currently loaded URL, "" when nothing is loaded.
func (o *Output) URL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.url
}

func (o *Output) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *Output) Playing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playing && !o.paused
}

// Loads returns every URL passed to a successful Load, in order.
func (o *Output) Loads() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.loads))
	copy(out, o.loads)
	return out
}

func (o *Output) Seeks() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]time.Duration, len(o.seeks))
	copy(out, o.seeks)
	return out
}

// Live is the number of loaded, unreleased sources (0 or 1 when used correctly).
func (o *Output) Live() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.live
}

// MaxLive is the highest Live value ever observed.
func (o *Output) MaxLive() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxLive
}

func (o *Output) Releases() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.releases
}
