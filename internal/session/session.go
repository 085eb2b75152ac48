// Package session holds the observable playback state consumed by the
// mini-player, the full player and any other view.
package session

import (
	"sync"
	"time"

	"github.com/cadenza/cadenza/internal/provider"
)

type Status string

const (
	Idle    Status = "idle"
	Loading Status = "loading"
	Playing Status = "playing"
	Paused  Status = "paused"
)

// Snapshot is an immutable view of the session at one instant.
type Snapshot struct {
	Queue     []provider.Track
	Index     int
	Track     *provider.Track
	Rendition provider.Rendition
	Status    Status

	Elapsed  time.Duration
	Duration time.Duration
	Progress float64

	FullPlayerVisible bool
	MiniPlayerVisible bool

	ArtURL string
	Color  string

	// LastError is the most recent surfaced failure; ErrorSeq increments once per failure.
	LastError error
	ErrorSeq  uint64
	Intent    uint64
}

// Empty is the snapshot of a fresh session.
func Empty() Snapshot {
	return Snapshot{Index: -1, Rendition: provider.Vocal, Status: Idle}
}

// Active reports whether a source is loaded or loading.
func (s Snapshot) Active() bool { return s.Status != Idle }

// Clone returns a deep copy so the receiver's slices and pointers are not shared.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Queue != nil {
		out.Queue = make([]provider.Track, len(s.Queue))
		copy(out.Queue, s.Queue)
	}
	if s.Track != nil {
		t := *s.Track
		out.Track = &t
	}
	return out
}

// Publisher fans snapshots out to subscribers. Each subscriber sees only the
// latest value; an undelivered snapshot is replaced rather than queued.
type Publisher struct {
	mu      sync.RWMutex
	current Snapshot
	subs    map[uint64]chan Snapshot
	nextID  uint64
	closed  bool
}

func NewPublisher() *Publisher {
	return &Publisher{current: Empty(), subs: map[uint64]chan Snapshot{}}
}

// Publish records snap as current and notifies every subscriber.
func (p *Publisher) Publish(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.current = snap.Clone()
	for _, ch := range p.subs {
		deliver(ch, p.current.Clone())
	}
}

func deliver(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	// Drop the stale value and retry; only Publish sends, and it holds the lock.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Snapshot returns a copy of the latest published state.
func (p *Publisher) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.Clone()
}

// Subscribe returns a channel primed with the current snapshot and a cancel
// func that closes it.
func (p *Publisher) Subscribe() (<-chan Snapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	ch <- p.current.Clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if c, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(c)
			}
		})
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}
