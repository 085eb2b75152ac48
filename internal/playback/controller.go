// Package playback drives the single audio output through a positional queue.
//
// Every playback-initiating call stamps a new intent token. Resolution, load,
// progress and completion results carry the token they were started under and
// are dropped once a newer intent exists.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cadenza/cadenza/internal/audio"
	"github.com/cadenza/cadenza/internal/provider"
	"github.com/cadenza/cadenza/internal/queue"
	"github.com/cadenza/cadenza/internal/resolver"
	"github.com/cadenza/cadenza/internal/sampler"
	"github.com/cadenza/cadenza/internal/session"
)

// SkipPolicy selects in which directions tracks without a file for the active
// rendition are skipped.
type SkipPolicy string

const (
	SkipForward SkipPolicy = "forward"
	SkipBoth    SkipPolicy = "both"
	SkipNone    SkipPolicy = "none"
)

func (p SkipPolicy) forward() bool  { return p != SkipNone }
func (p SkipPolicy) backward() bool { return p == SkipBoth }

// FailurePolicy decides what happens when the engine ends a track with an error.
type FailurePolicy string

const (
	// AdvanceOnError treats a failed track like a finished one.
	AdvanceOnError FailurePolicy = "advance"
	// StopOnError tears the session down and surfaces the error.
	StopOnError FailurePolicy = "stop"
)

// URLResolver issues playable URLs for file references.
type URLResolver interface {
	Resolve(ctx context.Context, ref string) (resolver.Resolved, error)
	Invalidate(ref string)
}

// Options configures the Controller.
type Options struct {
	Output   audio.Output
	Resolver URLResolver
	// Publisher receives every snapshot. A new one is created when nil.
	Publisher       *session.Publisher
	SampleInterval  time.Duration
	SkipMissing     SkipPolicy
	OnPlaybackError FailurePolicy
	Logger          *slog.Logger
}

// Controller owns the queue, the current rendition and the one live audio
// source. Its methods are safe for concurrent use.
type Controller struct {
	out     audio.Output
	res     URLResolver
	pub     *session.Publisher
	sampler *sampler.Sampler
	skip    SkipPolicy
	onError FailurePolicy
	log     *slog.Logger

	base       context.Context
	cancelBase context.CancelFunc

	// engineMu serializes source acquisition; it is never taken while mu is held.
	engineMu sync.Mutex

	mu         sync.Mutex
	queue      *queue.Queue
	track      *provider.Track
	rendition  provider.Rendition
	status     session.Status
	loaded     bool
	elapsed    time.Duration
	duration   time.Duration
	full       bool
	art        string
	color      string
	lastErr    error
	errSeq     uint64
	intent     uint64
	seekGen    uint64
	cancelLoad context.CancelFunc
	closed     bool
}

func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Publisher == nil {
		opts.Publisher = session.NewPublisher()
	}
	if opts.SkipMissing == "" {
		opts.SkipMissing = SkipForward
	}
	if opts.OnPlaybackError == "" {
		opts.OnPlaybackError = AdvanceOnError
	}
	base, cancel := context.WithCancel(context.Background())
	c := &Controller{
		out:        opts.Output,
		res:        opts.Resolver,
		pub:        opts.Publisher,
		sampler:    sampler.New(opts.SampleInterval),
		skip:       opts.SkipMissing,
		onError:    opts.OnPlaybackError,
		log:        opts.Logger,
		base:       base,
		cancelBase: cancel,
		queue:      queue.New(),
		rendition:  provider.Vocal,
		status:     session.Idle,
	}
	c.pub.Publish(c.snapshotLocked())
	return c
}

// Publisher returns the publisher snapshots are sent to.
func (c *Controller) Publisher() *session.Publisher { return c.pub }

// Snapshot returns the current session state.
func (c *Controller) Snapshot() session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// PlayQueue replaces the queue with tracks and plays the one at start in the
// vocal rendition. It blocks until the track is playing or has failed.
func (c *Controller) PlayQueue(ctx context.Context, tracks []provider.Track, start int, art, color string) error {
	return c.playAt(ctx, tracks, start, provider.Vocal, art, color)
}

// Restore replays a persisted session, keeping its rendition when the saved
// track still has a file for it.
func (c *Controller) Restore(ctx context.Context, saved queue.Saved) error {
	if len(saved.Tracks) == 0 {
		return ErrEmptyQueue
	}
	r := provider.Vocal
	if saved.Index >= 0 && saved.Index < len(saved.Tracks) && saved.Tracks[saved.Index].HasRendition(saved.Rendition) {
		r = saved.Rendition
	}
	return c.playAt(ctx, saved.Tracks, saved.Index, r, saved.ArtURL, saved.Color)
}

// Saved captures the parts of the session worth persisting.
func (c *Controller) Saved() queue.Saved {
	c.mu.Lock()
	defer c.mu.Unlock()
	return queue.Saved{
		Tracks:    c.queue.Items(),
		Index:     c.queue.CurrentIndex(),
		Rendition: c.rendition,
		ArtURL:    c.art,
		Color:     c.color,
	}
}

func (c *Controller) playAt(ctx context.Context, tracks []provider.Track, start int, r provider.Rendition, art, color string) error {
	if len(tracks) == 0 {
		return ErrEmptyQueue
	}
	if start < 0 || start >= len(tracks) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, start, len(tracks))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	token, loadCtx := c.newIntentLocked(ctx)
	if err := c.queue.Replace(tracks, start); err != nil {
		c.mu.Unlock()
		return err
	}
	c.rendition = r
	c.art = art
	c.color = color
	track := tracks[start]
	if !track.HasRendition(r) {
		err := fmt.Errorf("%w: %q (%s)", ErrMissingFile, track.Title, r)
		c.teardownLocked()
		c.surfaceLocked(err)
		c.publishLocked()
		c.mu.Unlock()
		return err
	}
	c.beginLocked(start, track)
	c.mu.Unlock()

	return c.load(loadCtx, token, track, r)
}

// PlayNext moves forward, skipping tracks without a file for the current
// rendition unless the skip policy is SkipNone. Running past the end stops
// the session.
func (c *Controller) PlayNext(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.queue.CurrentIndex() < 0 {
		c.mu.Unlock()
		return ErrNothingPlaying
	}
	idx, track, err := c.nextLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	token, loadCtx := c.newIntentLocked(ctx)
	if idx < 0 {
		c.log.Info("end of queue")
		c.teardownLocked()
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}
	c.beginLocked(idx, track)
	r := c.rendition
	c.mu.Unlock()

	return c.load(loadCtx, token, track, r)
}

// nextLocked picks the forward target. idx is -1 when the queue is exhausted.
func (c *Controller) nextLocked() (int, provider.Track, error) {
	r := c.rendition
	if c.skip.forward() {
		idx := c.queue.NextWith(func(t provider.Track) bool { return t.HasRendition(r) })
		if idx < 0 {
			return -1, provider.Track{}, nil
		}
		t, _ := c.queue.At(idx)
		return idx, t, nil
	}
	idx := c.queue.CurrentIndex() + 1
	t, err := c.queue.At(idx)
	if err != nil {
		return -1, provider.Track{}, nil
	}
	if !t.HasRendition(r) {
		return idx, t, fmt.Errorf("%w: %q (%s)", ErrMissingFile, t.Title, r)
	}
	return idx, t, nil
}

// PlayPrevious moves back one track. At the first track it does nothing.
// Without backward skipping, a previous track lacking its file yields
// ErrMissingFile and playback is left as it was.
func (c *Controller) PlayPrevious(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	cur := c.queue.CurrentIndex()
	if cur <= 0 {
		c.mu.Unlock()
		return nil
	}
	r := c.rendition
	var idx int
	if c.skip.backward() {
		idx = c.queue.PrevWith(func(t provider.Track) bool { return t.HasRendition(r) })
	} else {
		idx = cur - 1
	}
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: no earlier track has a %s file", ErrMissingFile, r)
	}
	track, _ := c.queue.At(idx)
	if !track.HasRendition(r) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q (%s)", ErrMissingFile, track.Title, r)
	}
	token, loadCtx := c.newIntentLocked(ctx)
	c.beginLocked(idx, track)
	c.mu.Unlock()

	return c.load(loadCtx, token, track, r)
}

// SwitchVersion reloads the current track in target, keeping the queue
// position, artwork and color.
func (c *Controller) SwitchVersion(ctx context.Context, target provider.Rendition) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown rendition %q", ErrRenditionUnavailable, target)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.track == nil {
		c.mu.Unlock()
		return ErrNothingPlaying
	}
	if target == c.rendition {
		c.mu.Unlock()
		return nil
	}
	track := *c.track
	if !track.HasRendition(target) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q has no %s file", ErrRenditionUnavailable, track.Title, target)
	}
	token, loadCtx := c.newIntentLocked(ctx)
	c.rendition = target
	c.beginLocked(c.queue.CurrentIndex(), track)
	c.mu.Unlock()

	c.log.Info("switch version", slog.String("track", track.ID), slog.String("rendition", string(target)))
	return c.load(loadCtx, token, track, target)
}

// ToggleVersion switches to the other rendition.
func (c *Controller) ToggleVersion(ctx context.Context) error {
	c.mu.Lock()
	target := provider.Instrumental
	if c.rendition == provider.Instrumental {
		target = provider.Vocal
	}
	c.mu.Unlock()
	return c.SwitchVersion(ctx, target)
}

// Pause is a no-op unless a source is playing.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded || c.status != session.Playing {
		return
	}
	c.out.Pause()
	c.status = session.Paused
	c.publishLocked()
}

// Resume is a no-op unless a source is paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded || c.status != session.Paused {
		return
	}
	c.out.Resume()
	c.status = session.Playing
	c.publishLocked()
}

// TogglePause pauses a playing source and resumes a paused one.
func (c *Controller) TogglePause() {
	c.mu.Lock()
	paused := c.status == session.Paused
	c.mu.Unlock()
	if paused {
		c.Resume()
	} else {
		c.Pause()
	}
}

// SeekTo moves the play head to fraction of the duration, clamped to [0, 1],
// and publishes the new position without waiting for the next sample.
func (c *Controller) SeekTo(fraction float64) error {
	if fraction < 0 || fraction != fraction {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return nil
	}
	offset := time.Duration(fraction * float64(c.duration))
	return c.seekLocked(offset)
}

// SeekBy moves the play head by delta relative to the last known position.
func (c *Controller) SeekBy(delta time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return nil
	}
	offset := c.elapsed + delta
	if offset < 0 {
		offset = 0
	}
	if c.duration > 0 && offset > c.duration {
		offset = c.duration
	}
	return c.seekLocked(offset)
}

// seekLocked restarts the sampler under a new seek generation so a reading
// taken before the seek can no longer land after it.
func (c *Controller) seekLocked(offset time.Duration) error {
	if err := c.out.Seek(offset); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	c.elapsed = offset
	c.seekGen++
	c.startSamplerLocked(c.intent)
	c.publishLocked()
	return nil
}

func (c *Controller) startSamplerLocked(token uint64) {
	gen := c.seekGen
	c.sampler.Start(c.out, func(p sampler.Progress) { c.handleTick(token, gen, p) })
}

// Stop releases the source and clears the session. Any in-flight load is
// abandoned.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newIntentLocked(context.Background())
	c.teardownLocked()
	c.publishLocked()
}

// ShowPlayer opens the full player; it has no effect without a track.
func (c *Controller) ShowPlayer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.track == nil || c.full {
		return
	}
	c.full = true
	c.publishLocked()
}

func (c *Controller) HidePlayer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.full {
		return
	}
	c.full = false
	c.publishLocked()
}

// Enqueue appends tracks. With nothing playing it starts them instead.
func (c *Controller) Enqueue(ctx context.Context, tracks ...provider.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	c.mu.Lock()
	if c.track == nil {
		c.mu.Unlock()
		return c.PlayQueue(ctx, tracks, 0, "", "")
	}
	c.queue.Add(tracks...)
	c.publishLocked()
	c.mu.Unlock()
	return nil
}

// EnqueueNext inserts track right after the current one.
func (c *Controller) EnqueueNext(ctx context.Context, track provider.Track) error {
	c.mu.Lock()
	if c.track == nil {
		c.mu.Unlock()
		return c.PlayQueue(ctx, []provider.Track{track}, 0, "", "")
	}
	c.queue.AddNext(track)
	c.publishLocked()
	c.mu.Unlock()
	return nil
}

// RemoveAt drops the queued track at idx. The current track cannot be
// removed; stop or skip it instead.
func (c *Controller) RemoveAt(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.track == nil {
		return ErrNothingPlaying
	}
	if err := c.queue.Remove(idx); err != nil {
		return fmt.Errorf("remove %d: %w", idx, err)
	}
	c.publishLocked()
	return nil
}

// Move reorders the queue. The current track keeps playing wherever it ends up.
func (c *Controller) Move(from, to int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.track == nil {
		return ErrNothingPlaying
	}
	if err := c.queue.Move(from, to); err != nil {
		return fmt.Errorf("move %d to %d: %w", from, to, err)
	}
	c.publishLocked()
	return nil
}

// Close stops playback, abandons in-flight work and closes the publisher.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.newIntentLocked(context.Background())
	c.teardownLocked()
	c.publishLocked()
	c.mu.Unlock()
	c.cancelBase()
	c.pub.Close()
}

// newIntentLocked stamps a new token and cancels the previous intent's load.
func (c *Controller) newIntentLocked(ctx context.Context) (uint64, context.Context) {
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	c.intent++
	loadCtx, cancel := context.WithCancel(ctx)
	c.cancelLoad = cancel
	return c.intent, loadCtx
}

// beginLocked stops the current source and marks idx as loading.
func (c *Controller) beginLocked(idx int, track provider.Track) {
	c.releaseLocked()
	_ = c.queue.SetCurrent(idx)
	t := track
	c.track = &t
	c.status = session.Loading
	c.elapsed = 0
	c.duration = track.Duration()
	c.publishLocked()
}

func (c *Controller) releaseLocked() {
	c.sampler.Stop()
	c.out.Release()
	c.loaded = false
}

func (c *Controller) teardownLocked() {
	c.releaseLocked()
	c.queue.Clear()
	c.track = nil
	c.rendition = provider.Vocal
	c.status = session.Idle
	c.elapsed = 0
	c.duration = 0
	c.full = false
	c.art = ""
	c.color = ""
}

func (c *Controller) surfaceLocked(err error) {
	c.lastErr = err
	c.errSeq++
	c.log.Error("playback error", slog.Any("err", err))
}

func (c *Controller) publishLocked() {
	c.pub.Publish(c.snapshotLocked())
}

func (c *Controller) snapshotLocked() session.Snapshot {
	p := sampler.Compute(c.elapsed, c.duration)
	s := session.Snapshot{
		Queue:             c.queue.Items(),
		Index:             c.queue.CurrentIndex(),
		Rendition:         c.rendition,
		Status:            c.status,
		Elapsed:           p.Elapsed,
		Duration:          c.duration,
		Progress:          p.Fraction,
		FullPlayerVisible: c.full && c.track != nil,
		MiniPlayerVisible: c.track != nil && !c.full,
		ArtURL:            c.art,
		Color:             c.color,
		LastError:         c.lastErr,
		ErrorSeq:          c.errSeq,
		Intent:            c.intent,
	}
	if c.track != nil {
		t := *c.track
		s.Track = &t
	}
	return s
}

// load resolves and installs the source for token. Failures of a current
// intent tear the session down and are surfaced once.
func (c *Controller) load(ctx context.Context, token uint64, track provider.Track, r provider.Rendition) error {
	ref := track.FileRef(r)
	res, err := c.res.Resolve(ctx, ref)
	if err != nil {
		return c.fail(token, err)
	}
	err = c.swapSource(ctx, token, res.URL)
	switch {
	case err == nil:
		c.log.Info("playing", slog.String("track", track.ID), slog.String("title", track.Title), slog.String("rendition", string(r)))
		return nil
	case errors.Is(err, ErrSuperseded):
		return err
	default:
		c.res.Invalidate(ref)
		return c.fail(token, err)
	}
}

// swapSource is the only place a source is acquired. It releases whatever is
// loaded, loads url outside the state lock, and installs the result only if
// token is still current; a superseded result is released immediately.
func (c *Controller) swapSource(ctx context.Context, token uint64, url string) error {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	c.mu.Lock()
	if token != c.intent {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.releaseLocked()
	c.mu.Unlock()

	dur, err := c.out.Load(ctx, url)

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.intent {
		if err == nil {
			c.out.Release()
		}
		return ErrSuperseded
	}
	if err != nil {
		return err
	}
	if err := c.out.Play(func(err error) { c.handleCompletion(token, err) }); err != nil {
		c.out.Release()
		return fmt.Errorf("%w: %w", audio.ErrLoadFailed, err)
	}
	c.loaded = true
	c.status = session.Playing
	c.elapsed = 0
	if dur > 0 {
		c.duration = dur
	}
	c.startSamplerLocked(token)
	c.publishLocked()
	return nil
}

func (c *Controller) fail(token uint64, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.intent {
		return ErrSuperseded
	}
	c.teardownLocked()
	c.surfaceLocked(err)
	c.publishLocked()
	return err
}

func (c *Controller) handleTick(token, gen uint64, p sampler.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.intent || gen != c.seekGen || !c.loaded {
		return
	}
	c.elapsed = p.Elapsed
	if p.Duration > 0 {
		c.duration = p.Duration
	}
	c.publishLocked()
}

// handleCompletion runs when the engine finishes the source started under
// token. It consults the queue, rendition and policies as they are now.
func (c *Controller) handleCompletion(token uint64, err error) {
	c.mu.Lock()
	if token != c.intent || !c.loaded || c.closed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		// Both policies surface the failure; advance then carries on like a
		// natural end of track.
		c.surfaceLocked(err)
		if c.onError == StopOnError {
			c.newIntentLocked(context.Background())
			c.teardownLocked()
			c.publishLocked()
			c.mu.Unlock()
			return
		}
	}

	idx, track, nextErr := c.nextLocked()
	next, loadCtx := c.newIntentLocked(c.base)
	switch {
	case nextErr != nil:
		c.teardownLocked()
		c.surfaceLocked(nextErr)
		c.publishLocked()
		c.mu.Unlock()
		return
	case idx < 0:
		c.log.Info("end of queue")
		c.teardownLocked()
		c.publishLocked()
		c.mu.Unlock()
		return
	}
	c.beginLocked(idx, track)
	r := c.rendition
	c.mu.Unlock()

	_ = c.load(loadCtx, next, track, r)
}
