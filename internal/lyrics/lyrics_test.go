package lyrics

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	raw := json.RawMessage(`[{"text":"world","start":600,"end":1100},{"text":"hello","start":0,"end":500.5}]`)
	words, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(words) != 2 || words[0].Text != "hello" || words[1].Text != "world" {
		t.Fatalf("unexpected words %+v", words)
	}
	if words[0].End != 500*time.Millisecond+500*time.Microsecond || words[1].Start != 600*time.Millisecond {
		t.Fatalf("offsets not converted from ms: %+v", words)
	}
}

func TestParseEmptyAndInvalid(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		words, err := Parse(json.RawMessage(raw))
		if err != nil || words != nil {
			t.Fatalf("Parse(%q) = %v, %v", raw, words, err)
		}
	}
	for _, raw := range []string{`{"text":"x"}`, `[{"text":"x","start":10,"end":5}]`} {
		if _, err := Parse(json.RawMessage(raw)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Parse(%q): expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestActiveIndex(t *testing.T) {
	words := []Word{
		{Text: "a", Start: 0, End: time.Second},
		{Text: "b", Start: 2 * time.Second, End: 3 * time.Second},
	}
	tests := []struct {
		at   time.Duration
		want int
	}{
		{0, 0},
		{time.Second, 0},
		{1500 * time.Millisecond, -1},
		{2 * time.Second, 1},
		{3 * time.Second, 1},
		{4 * time.Second, -1},
	}
	for _, tt := range tests {
		if got := ActiveIndex(words, tt.at); got != tt.want {
			t.Errorf("ActiveIndex(%v) = %d, want %d", tt.at, got, tt.want)
		}
	}
	if ActiveIndex(nil, 0) != -1 {
		t.Errorf("expected -1 for no words")
	}
}

func TestLine(t *testing.T) {
	var words []Word
	for _, s := range []string{"one", "two", "three", "four", "five", "six"} {
		words = append(words, Word{Text: s})
	}
	got, pos := Line(words, 4, 3)
	if len(got) != 3 || got[0] != "four" || pos != 1 {
		t.Fatalf("Line(4,3) = %v %d", got, pos)
	}
	got, pos = Line(words, 5, 4)
	if got[len(got)-1] != "six" || got[pos] != "six" {
		t.Fatalf("Line(5,4) = %v %d", got, pos)
	}
	got, pos = Line(words, -1, 2)
	if len(got) != 2 || got[0] != "one" || pos != -1 {
		t.Fatalf("Line(-1,2) = %v %d", got, pos)
	}
}
