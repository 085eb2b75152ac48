package ui

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestGetTheme(t *testing.T) {
	tests := []struct {
		name     string
		noColor  bool
		expected string
	}{
		{"rainbow", false, "rainbow"},
		{"mono", false, "mono"},
		{"green", false, "green"},
		{"nocolor", false, "nocolor"},
		{"invalid", false, "rainbow"}, // defaults to rainbow
		{"rainbow", true, "nocolor"},  // noColor overrides
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			theme := GetTheme(tt.name, tt.noColor)
			if theme.Name != tt.expected {
				t.Errorf("GetTheme(%q, %v) = %q, want %q", tt.name, tt.noColor, theme.Name, tt.expected)
			}
		})
	}
}

func TestColoredThemes(t *testing.T) {
	for _, name := range []string{"rainbow", "mono", "green"} {
		theme := GetTheme(name, false)
		if theme.Accent.GetForeground() == nil {
			t.Errorf("%s should have colors", name)
		}
		if !theme.Title.GetBold() {
			t.Errorf("%s title should be bold", name)
		}
	}
	if nc := NoColor(); !nc.NoColor || !nc.Title.GetBold() {
		t.Error("NoColor should flag itself and use bold for title")
	}
}

func TestValidTheme(t *testing.T) {
	for _, name := range ThemeNames() {
		if !ValidTheme(name) {
			t.Errorf("ValidTheme(%q) should be true", name)
		}
	}
	if ValidTheme("invalid") {
		t.Error("ValidTheme('invalid') should be false")
	}
}

func TestFallbackColorStable(t *testing.T) {
	a := FallbackColor("track-1")
	if a != FallbackColor("track-1") {
		t.Fatal("fallback color should be stable for a seed")
	}
	if !strings.HasPrefix(a, "#") || len(a) != 7 {
		t.Fatalf("unexpected color %q", a)
	}
}

func TestProgressBar(t *testing.T) {
	theme := NoColor()
	cases := []struct {
		progress float64
		filled   int
	}{
		{0, 0},
		{0.5, 5},
		{1, 10},
		{2, 10},
		{-1, 0},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		bar := theme.ProgressBar(tc.progress, 10)
		if got := strings.Count(bar, "━"); got != tc.filled {
			t.Errorf("progress %v: filled %d, want %d", tc.progress, got, tc.filled)
		}
		if got := strings.Count(bar, "━") + strings.Count(bar, "─"); got != 10 {
			t.Errorf("progress %v: width %d", tc.progress, got)
		}
	}
	if theme.ProgressBar(0.5, 0) != "" {
		t.Error("zero width should render nothing")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                              "0:00",
		59 * time.Second:               "0:59",
		3*time.Minute + 5*time.Second:  "3:05",
		time.Hour + 2*time.Second:      "1:00:02",
		-time.Second:                   "0:00",
		1500 * time.Millisecond:        "0:02",
	}
	for d, want := range cases {
		if got := FormatDuration(d); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
