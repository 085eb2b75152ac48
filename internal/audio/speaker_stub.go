//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Available indicates whether audio playback is supported in this build.
// Linux audio requires cgo for the native sound libraries.
const Available = false

// Speaker is a placeholder output for builds without an audio backend.
// Every Load fails with ErrUnavailable, so nothing is ever loaded.
type Speaker struct{}

func NewSpeaker(_ *http.Client, _ *slog.Logger) *Speaker {
	return &Speaker{}
}

func (s *Speaker) Load(ctx context.Context, url string) (time.Duration, error) {
	return 0, ErrUnavailable
}

func (s *Speaker) Play(onDone func(error)) error   { return ErrNotLoaded }
func (s *Speaker) Pause()                          {}
func (s *Speaker) Resume()                         {}
func (s *Speaker) Seek(offset time.Duration) error { return nil }
func (s *Speaker) Position() time.Duration         { return 0 }
func (s *Speaker) Duration() time.Duration         { return 0 }
func (s *Speaker) Loaded() bool                    { return false }
func (s *Speaker) Release()                        {}
