package session

import (
	"testing"
	"time"

	"github.com/cadenza/cadenza/internal/provider"
)

func TestSubscribeReceivesCurrent(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe()
	defer cancel()

	snap := <-ch
	if snap.Status != Idle || snap.Index != -1 || snap.Rendition != provider.Vocal {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
}

func TestPublishLatestWins(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe()
	defer cancel()
	<-ch

	for i := 1; i <= 5; i++ {
		p.Publish(Snapshot{Index: i, Status: Playing, Track: &provider.Track{ID: "t"}})
	}
	select {
	case snap := <-ch:
		if snap.Index != 5 {
			t.Fatalf("expected latest snapshot index 5, got %d", snap.Index)
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot delivered")
	}
	select {
	case snap := <-ch:
		t.Fatalf("expected no further snapshots, got %+v", snap)
	default:
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	p := NewPublisher()
	track := provider.Track{ID: "a", Title: "A"}
	queue := []provider.Track{track}
	p.Publish(Snapshot{Queue: queue, Index: 0, Track: &track, Status: Playing})

	queue[0].Title = "changed"
	track.Title = "changed"

	got := p.Snapshot()
	if got.Queue[0].Title != "A" || got.Track.Title != "A" {
		t.Fatalf("publisher shares caller memory: %+v", got)
	}
	got.Queue[0].Title = "mine"
	if p.Snapshot().Queue[0].Title != "A" {
		t.Fatalf("snapshot shares publisher memory")
	}
}

func TestCancelAndClose(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe()
	<-ch
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}

	ch2, cancel2 := p.Subscribe()
	<-ch2
	p.Close()
	if _, ok := <-ch2; ok {
		t.Fatalf("expected channel closed after Close")
	}
	cancel2()
	p.Publish(Snapshot{Index: 3})

	ch3, _ := p.Subscribe()
	if _, ok := <-ch3; ok {
		t.Fatalf("subscribe after close must return a closed channel")
	}
}
