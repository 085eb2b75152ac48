// Package audio owns the single decoded audio stream the player drives.
package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLoadFailed wraps any failure to open or decode a source.
	ErrLoadFailed = errors.New("audio: load failed")
	// ErrPlaybackFailed is passed to the completion callback when a stream ends abnormally.
	ErrPlaybackFailed = errors.New("audio: playback failed")
	// ErrBusy is returned by Load while a previous source has not been released.
	ErrBusy = errors.New("audio: previous source not released")
	// ErrNotLoaded is returned by Play when there is nothing to play.
	ErrNotLoaded = errors.New("audio: no source loaded")
	// ErrUnavailable is returned when the build has no audio backend.
	ErrUnavailable = errors.New("audio: output unavailable in this build")
)

// Output wraps one native playback engine instance. At most one source is
// loaded at a time; Release must be called before the next Load.
type Output interface {
	// Load opens url and returns its duration.
	Load(ctx context.Context, url string) (time.Duration, error)
	// Play starts the loaded source. onDone runs exactly once, in its own
	// goroutine, with nil at end of stream or an ErrPlaybackFailed wrap.
	// It never runs for a source that was released first.
	Play(onDone func(error)) error
	Pause()
	Resume()
	Seek(offset time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	Loaded() bool
	Release()
}

var _ Output = (*Speaker)(nil)
