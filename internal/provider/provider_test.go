package provider

import (
	"fmt"
	"testing"
	"time"
)

func TestTrackRenditions(t *testing.T) {
	tr := Track{
		ID:                   "1",
		VocalRef:             "songs/1.mp3",
		InstrumentalRef:      "songs/1.instrumental.mp3",
		StoreURL:             "https://shop/1",
		StoreURLInstrumental: "https://shop/1i",
		DurationSeconds:      90,
	}
	if tr.FileRef(Vocal) != "songs/1.mp3" {
		t.Fatalf("vocal ref: %q", tr.FileRef(Vocal))
	}
	if tr.FileRef(Instrumental) != "songs/1.instrumental.mp3" {
		t.Fatalf("instrumental ref: %q", tr.FileRef(Instrumental))
	}
	if tr.FileRef("karaoke") != "" {
		t.Fatalf("unknown rendition should have no ref")
	}
	if tr.PurchaseLink(Instrumental) != "https://shop/1i" || tr.PurchaseLink(Vocal) != "https://shop/1" {
		t.Fatalf("purchase links mismatch")
	}
	if tr.Duration() != 90*time.Second {
		t.Fatalf("duration: %v", tr.Duration())
	}

	vocalOnly := Track{ID: "2", VocalRef: "songs/2.mp3"}
	if vocalOnly.HasRendition(Instrumental) {
		t.Fatalf("vocal-only track reports instrumental")
	}
	if !Vocal.Valid() || Rendition("x").Valid() {
		t.Fatalf("rendition validity mismatch")
	}
}

func TestErrorHelpers(t *testing.T) {
	wrapped := fmt.Errorf("list songs: %w", ErrNotFound)
	if !IsNotFound(wrapped) {
		t.Fatalf("expected wrapped not found")
	}
	if IsUnauthorized(wrapped) {
		t.Fatalf("not found is not unauthorized")
	}
}
