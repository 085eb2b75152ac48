// Package sampler polls a playing source at a fixed interval and reports
// elapsed time and normalized progress.
package sampler

import (
	"context"
	"sync"
	"time"
)

const DefaultInterval = 250 * time.Millisecond

// Progress is one reading of the play head.
type Progress struct {
	Elapsed  time.Duration
	Duration time.Duration
	Fraction float64
}

// Compute clamps a raw position reading. Fraction stays 0 while the duration
// is unknown and never leaves [0, 1].
func Compute(pos, dur time.Duration) Progress {
	if pos < 0 {
		pos = 0
	}
	if dur <= 0 {
		return Progress{Elapsed: pos}
	}
	if pos > dur {
		pos = dur
	}
	return Progress{Elapsed: pos, Duration: dur, Fraction: float64(pos) / float64(dur)}
}

// Source is read on every tick.
type Source interface {
	Position() time.Duration
	Duration() time.Duration
}

// Sampler runs at most one ticker at a time.
type Sampler struct {
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{interval: interval}
}

func (s *Sampler) Interval() time.Duration { return s.interval }

// Start cancels any running ticker and begins polling src, passing each
// reading to emit. emit runs on the sampler goroutine.
func (s *Sampler) Start(src Source, emit func(Progress)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p := Compute(src.Position(), src.Duration())
				if ctx.Err() != nil {
					return
				}
				emit(p)
			}
		}
	}()
}

// Stop cancels the running ticker without waiting for it; a reading already
// being emitted may still arrive, so callers must tolerate late readings.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sampler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.done = nil
}

// Running reports whether a ticker is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Done returns a channel closed when the current ticker goroutine exits, or nil.
func (s *Sampler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
