// Package lyrics decodes word-timed lyrics and finds the word being sung.
package lyrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrMalformed = errors.New("lyrics: malformed timed lyrics")

// Word is one sung word with its start and end offsets into the track.
type Word struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

type wireWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"` // milliseconds
	End   float64 `json:"end"`
}

// Parse decodes a JSON array of {text, start, end} objects with millisecond
// offsets. Empty or null input yields no words. Words are returned in start order.
func Parse(raw json.RawMessage) ([]Word, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var wire []wireWord
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	words := make([]Word, 0, len(wire))
	for i, w := range wire {
		if w.End < w.Start {
			return nil, fmt.Errorf("%w: word %d ends before it starts", ErrMalformed, i)
		}
		words = append(words, Word{
			Text:  w.Text,
			Start: msToDuration(w.Start),
			End:   msToDuration(w.End),
		})
	}
	sort.SliceStable(words, func(i, j int) bool { return words[i].Start < words[j].Start })
	return words, nil
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// ActiveIndex returns the index of the first word whose span contains t,
// bounds inclusive, or -1.
func ActiveIndex(words []Word, t time.Duration) int {
	for i, w := range words {
		if t >= w.Start && t <= w.End {
			return i
		}
	}
	return -1
}

// Line joins the words around the active one into a window of at most size
// words, returning the text and the active word's position within it.
func Line(words []Word, active, size int) ([]string, int) {
	if len(words) == 0 || size <= 0 {
		return nil, -1
	}
	center := active
	if center < 0 {
		center = 0
	}
	start := center - size/2
	if start < 0 {
		start = 0
	}
	end := start + size
	if end > len(words) {
		end = len(words)
		start = max(0, end-size)
	}
	out := make([]string, 0, end-start)
	for _, w := range words[start:end] {
		out = append(out, w.Text)
	}
	if active < 0 {
		return out, -1
	}
	return out, active - start
}
