package queue

import (
	"errors"
	"slices"

	"github.com/cadenza/cadenza/internal/provider"
)

// Queue maintains an ordered list of tracks and the current position.
// It is not safe for concurrent use; the playback controller guards it.
type Queue struct {
	items   []provider.Track
	current int
}

var (
	ErrEmpty      = errors.New("queue is empty")
	ErrOutOfRange = errors.New("index out of range")
	// ErrCurrent is returned when removing the track the queue points at.
	ErrCurrent = errors.New("cannot remove the current track")
)

func New() *Queue {
	return &Queue{items: []provider.Track{}, current: -1}
}

// Replace swaps in a new list wholesale and points at start.
func (q *Queue) Replace(tracks []provider.Track, start int) error {
	if len(tracks) == 0 {
		return ErrEmpty
	}
	if start < 0 || start >= len(tracks) {
		return ErrOutOfRange
	}
	q.items = make([]provider.Track, len(tracks))
	copy(q.items, tracks)
	q.current = start
	return nil
}

func (q *Queue) Items() []provider.Track {
	out := make([]provider.Track, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) At(idx int) (provider.Track, error) {
	if idx < 0 || idx >= len(q.items) {
		return provider.Track{}, ErrOutOfRange
	}
	return q.items[idx], nil
}

func (q *Queue) CurrentIndex() int {
	return q.current
}

// NextWith returns the first index after the current one whose track
// satisfies ok, or -1 when none remains.
func (q *Queue) NextWith(ok func(provider.Track) bool) int {
	for i := q.current + 1; i < len(q.items); i++ {
		if ok(q.items[i]) {
			return i
		}
	}
	return -1
}

// PrevWith is the backward counterpart of NextWith.
func (q *Queue) PrevWith(ok func(provider.Track) bool) int {
	if q.current <= 0 {
		return -1
	}
	for i := q.current - 1; i >= 0; i-- {
		if ok(q.items[i]) {
			return i
		}
	}
	return -1
}

func (q *Queue) Add(tracks ...provider.Track) {
	q.items = append(q.items, tracks...)
	if q.current == -1 && len(q.items) > 0 {
		q.current = 0
	}
}

func (q *Queue) AddNext(track provider.Track) {
	if q.current == -1 {
		q.items = []provider.Track{track}
		q.current = 0
		return
	}
	idx := q.current + 1
	q.items = append(q.items[:idx], append([]provider.Track{track}, q.items[idx:]...)...)
}

// Remove drops the track at idx. The current track cannot be removed, and
// the current index keeps pointing at the same track.
func (q *Queue) Remove(idx int) error {
	switch {
	case idx < 0 || idx >= len(q.items):
		return ErrOutOfRange
	case idx == q.current:
		return ErrCurrent
	}
	q.items = slices.Delete(q.items, idx, idx+1)
	if idx < q.current {
		q.current--
	}
	return nil
}

// Move relocates the track at from to position to. The current index follows
// the track it pointed at.
func (q *Queue) Move(from, to int) error {
	n := len(q.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return ErrOutOfRange
	}
	if from == to {
		return nil
	}
	t := q.items[from]
	q.items = slices.Insert(slices.Delete(q.items, from, from+1), to, t)
	switch {
	case q.current == from:
		q.current = to
	case from < q.current && q.current <= to:
		q.current--
	case to <= q.current && q.current < from:
		q.current++
	}
	return nil
}

func (q *Queue) SetCurrent(idx int) error {
	if idx < 0 || idx >= len(q.items) {
		return ErrOutOfRange
	}
	q.current = idx
	return nil
}

func (q *Queue) Clear() {
	q.items = nil
	q.current = -1
}
