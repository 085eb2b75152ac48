package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cadenza/cadenza/internal/provider"
)

func sampleTracks(n int) []provider.Track {
	var out []provider.Track
	for i := 0; i < n; i++ {
		out = append(out, provider.Track{ID: fmt.Sprintf("t%d", i), Title: fmt.Sprintf("Track %d", i), VocalRef: fmt.Sprintf("t%d.mp3", i)})
	}
	return out
}

func current(t *testing.T, q *Queue) provider.Track {
	t.Helper()
	tr, err := q.At(q.CurrentIndex())
	if err != nil {
		t.Fatalf("no current track: %v", err)
	}
	return tr
}

func TestQueueAdd(t *testing.T) {
	q := New()
	q.Add(provider.Track{ID: "1"}, provider.Track{ID: "2"})
	if q.Len() != 2 {
		t.Fatalf("expected len 2 got %d", q.Len())
	}
	if cur := current(t, q); cur.ID != "1" {
		t.Fatalf("expected first track, got %v", cur)
	}
}

func TestQueueReplace(t *testing.T) {
	q := New()
	if err := q.Replace(nil, 0); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if err := q.Replace(sampleTracks(2), 2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if q.CurrentIndex() != -1 || q.Len() != 0 {
		t.Fatalf("failed replace must leave queue untouched")
	}

	in := sampleTracks(3)
	if err := q.Replace(in, 1); err != nil {
		t.Fatalf("replace: %v", err)
	}
	in[1].Title = "mutated"
	cur := current(t, q)
	if cur.ID != "t1" || cur.Title != "Track 1" {
		t.Fatalf("replace must copy input, got %+v", cur)
	}
	if err := q.Replace(sampleTracks(1), 0); err != nil || q.Len() != 1 {
		t.Fatalf("second replace: len=%d err=%v", q.Len(), err)
	}
}

func TestQueueNextPrevWith(t *testing.T) {
	q := New()
	tracks := sampleTracks(4)
	tracks[1].VocalRef = ""
	_ = q.Replace(tracks, 0)
	hasVocal := func(t provider.Track) bool { return t.VocalRef != "" }
	always := func(provider.Track) bool { return true }

	if got := q.NextWith(hasVocal); got != 2 {
		t.Fatalf("NextWith skip missing = %d, want 2", got)
	}
	if got := q.NextWith(always); got != 1 {
		t.Fatalf("NextWith any = %d, want 1", got)
	}
	if got := q.PrevWith(always); got != -1 {
		t.Fatalf("PrevWith at 0 = %d, want -1", got)
	}

	_ = q.SetCurrent(2)
	if got := q.PrevWith(hasVocal); got != 0 {
		t.Fatalf("PrevWith skip missing = %d, want 0", got)
	}
	_ = q.SetCurrent(3)
	if got := q.NextWith(always); got != -1 {
		t.Fatalf("NextWith at end = %d, want -1", got)
	}
}

func TestQueueAddNext(t *testing.T) {
	q := New()
	q.AddNext(provider.Track{ID: "solo"})
	if q.CurrentIndex() != 0 || q.Len() != 1 {
		t.Fatalf("AddNext on empty queue: idx=%d len=%d", q.CurrentIndex(), q.Len())
	}
	_ = q.Replace(sampleTracks(3), 0)
	q.AddNext(provider.Track{ID: "x"})
	got, _ := q.At(1)
	if got.ID != "x" || q.Len() != 4 {
		t.Fatalf("expected x at index 1, got %s", got.ID)
	}
}

func TestQueueRemove(t *testing.T) {
	q := New()
	_ = q.Replace(sampleTracks(4), 2)

	if err := q.Remove(2); !errors.Is(err, ErrCurrent) {
		t.Fatalf("removing the current track: %v", err)
	}
	if err := q.Remove(4); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := q.Remove(3); err != nil {
		t.Fatalf("remove after current: %v", err)
	}
	if q.CurrentIndex() != 2 || current(t, q).ID != "t2" {
		t.Fatalf("current moved to %d", q.CurrentIndex())
	}
	if err := q.Remove(0); err != nil {
		t.Fatalf("remove before current: %v", err)
	}
	if q.CurrentIndex() != 1 || current(t, q).ID != "t2" || q.Len() != 2 {
		t.Fatalf("current should follow t2, got index %d len %d", q.CurrentIndex(), q.Len())
	}
}

func TestQueueMove(t *testing.T) {
	ids := func(q *Queue) string {
		var out string
		for _, tr := range q.Items() {
			out += tr.ID[1:]
		}
		return out
	}
	tests := []struct {
		name      string
		from, to  int
		wantOrder string
		wantCur   int
	}{
		{"current forward", 1, 3, "0231", 3},
		{"current back", 1, 0, "1023", 0},
		{"over current forward", 0, 2, "1203", 0},
		{"over current back", 3, 0, "3012", 2},
		{"after current", 2, 3, "0132", 1},
		{"same place", 2, 2, "0123", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			_ = q.Replace(sampleTracks(4), 1)
			if err := q.Move(tt.from, tt.to); err != nil {
				t.Fatalf("move: %v", err)
			}
			if got := ids(q); got != tt.wantOrder {
				t.Fatalf("order %s, want %s", got, tt.wantOrder)
			}
			if q.CurrentIndex() != tt.wantCur || current(t, q).ID != "t1" {
				t.Fatalf("current at %d, want %d on t1", q.CurrentIndex(), tt.wantCur)
			}
		})
	}

	q := New()
	_ = q.Replace(sampleTracks(2), 0)
	if err := q.Move(0, 2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestQueueClear(t *testing.T) {
	q := New()
	q.Add(sampleTracks(2)...)
	q.Clear()
	if q.Len() != 0 || q.CurrentIndex() != -1 {
		t.Fatalf("clear left len=%d idx=%d", q.Len(), q.CurrentIndex())
	}
	if _, err := q.At(0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}
