//go:build (linux && cgo) || windows || darwin

package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// Available indicates whether audio playback is supported in this build.
const Available = true

const speakerRate = beep.SampleRate(44100)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(speakerRate, speakerRate.N(time.Second/10))
	})
	return speakerErr
}

// Speaker plays audio through the system output using beep.
type Speaker struct {
	client *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	onDone   func(error)
	gen      uint64 // bumped on every Release so late end-of-stream callbacks are dropped
	finished bool
}

func NewSpeaker(client *http.Client, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{client: client, logger: logger}
}

func (s *Speaker) Load(ctx context.Context, url string) (time.Duration, error) {
	s.mu.Lock()
	busy := s.streamer != nil
	s.mu.Unlock()
	if busy {
		return 0, ErrBusy
	}

	src, err := Fetch(ctx, s.client, url)
	if err != nil {
		return 0, err
	}
	streamer, format, err := decode(src)
	if err != nil {
		return 0, err
	}
	if err := initSpeaker(); err != nil {
		streamer.Close()
		return 0, fmt.Errorf("%w: init speaker: %w", ErrLoadFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamer != nil {
		streamer.Close()
		return 0, ErrBusy
	}
	s.streamer = streamer
	s.format = format
	s.finished = false
	d := format.SampleRate.D(streamer.Len())
	s.logger.Debug("audio source loaded", slog.String("format", src.Format), slog.Duration("duration", d))
	return d, nil
}

func decode(src Source) (beep.StreamSeekCloser, beep.Format, error) {
	rc := nopCloser{bytes.NewReader(src.Data)}
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch src.Format {
	case "wav":
		streamer, format, err = wav.Decode(rc)
	case "mp3", "":
		streamer, format, err = mp3.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: unsupported format %q", ErrLoadFailed, src.Format)
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("%w: decode %s: %w", ErrLoadFailed, src.Format, err)
	}
	return streamer, format, nil
}

func (s *Speaker) Play(onDone func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamer == nil {
		return ErrNotLoaded
	}
	if s.ctrl != nil {
		return nil
	}
	var stream beep.Streamer = s.streamer
	if s.format.SampleRate != speakerRate {
		stream = beep.Resample(4, s.format.SampleRate, speakerRate, s.streamer)
	}
	s.onDone = onDone
	s.ctrl = &beep.Ctrl{Streamer: stream}
	gen := s.gen
	// The callback runs on the speaker goroutine with the speaker lock held.
	speaker.Play(beep.Seq(s.ctrl, beep.Callback(func() { go s.finish(gen) })))
	return nil
}

func (s *Speaker) finish(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.finished || s.streamer == nil {
		s.mu.Unlock()
		return
	}
	s.finished = true
	speaker.Lock()
	streamErr := s.streamer.Err()
	speaker.Unlock()
	cb := s.onDone
	s.mu.Unlock()

	if cb == nil {
		return
	}
	if streamErr != nil {
		cb(fmt.Errorf("%w: %w", ErrPlaybackFailed, streamErr))
		return
	}
	cb(nil)
}

func (s *Speaker) Pause()  { s.setPaused(true) }
func (s *Speaker) Resume() { s.setPaused(false) }

func (s *Speaker) setPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return
	}
	speaker.Lock()
	s.ctrl.Paused = paused
	speaker.Unlock()
}

func (s *Speaker) Seek(offset time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamer == nil {
		return nil
	}
	speaker.Lock()
	defer speaker.Unlock()
	n := s.format.SampleRate.N(offset)
	if n < 0 {
		n = 0
	}
	if last := s.streamer.Len() - 1; n > last && last >= 0 {
		n = last
	}
	return s.streamer.Seek(n)
}

func (s *Speaker) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamer == nil {
		return 0
	}
	speaker.Lock()
	pos := s.streamer.Position()
	speaker.Unlock()
	return s.format.SampleRate.D(pos)
}

func (s *Speaker) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamer == nil {
		return 0
	}
	return s.format.SampleRate.D(s.streamer.Len())
}

func (s *Speaker) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamer != nil
}

func (s *Speaker) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.ctrl != nil {
		speaker.Clear()
	}
	if s.streamer != nil {
		if err := s.streamer.Close(); err != nil {
			s.logger.Warn("close audio stream", slog.Any("err", err))
		}
	}
	s.streamer = nil
	s.ctrl = nil
	s.onDone = nil
	s.finished = false
}

// nopCloser wraps a bytes.Reader to implement io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
