package ui

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Name      string
	Accent    lipgloss.Style
	Dim       lipgloss.Style
	Text      lipgloss.Style
	Title     lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Border    lipgloss.Style
	Highlight lipgloss.Style
	// Lyric marks the word being sung in the full player.
	Lyric lipgloss.Style
	// NoColor disables cover swatches as well as text colors.
	NoColor bool
}

type palette struct {
	accent, dim, text, title, errorC, success, warning, border, highlight string
}

func (p palette) theme(name string) Theme {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return Theme{
		Name:      name,
		Accent:    fg(p.accent),
		Dim:       fg(p.dim),
		Text:      fg(p.text),
		Title:     fg(p.title).Bold(true),
		Error:     fg(p.errorC).Bold(true),
		Success:   fg(p.success).Bold(true),
		Warning:   fg(p.warning).Bold(true),
		Border:    fg(p.border),
		Highlight: fg(p.highlight).Bold(true),
		Lyric:     fg(p.highlight).Bold(true).Underline(true),
	}
}

var palettes = map[string]palette{
	"rainbow": {"#FF6FF7", "#6C6F93", "#E6E6FA", "#8EEBFF", "#FF5F56", "#5CFF5C", "#FFD166", "#7C7CFF", "#FFA7C4"},
	"mono":    {"#FFFFFF", "#666666", "#CCCCCC", "#FFFFFF", "#FFFFFF", "#CCCCCC", "#AAAAAA", "#888888", "#FFFFFF"},
	"green":   {"#00FF00", "#005500", "#00CC00", "#00FF00", "#00FF00", "#00FF00", "#00CC00", "#008800", "#00FF00"},
}

// ThemeNames returns the list of available theme names.
func ThemeNames() []string {
	return []string{"rainbow", "mono", "green", "nocolor"}
}

// GetTheme returns a theme by name. Unknown names fall back to rainbow, and
// noColor always wins.
func GetTheme(name string, noColor bool) Theme {
	if noColor || name == "nocolor" {
		return NoColor()
	}
	p, ok := palettes[name]
	if !ok {
		name, p = "rainbow", palettes["rainbow"]
	}
	return p.theme(name)
}

func ValidTheme(name string) bool {
	_, ok := palettes[name]
	return ok || name == "nocolor"
}

// NoColor is a high-contrast theme for NO_COLOR environments.
// Uses only bold, underline, and reverse instead of colors.
func NoColor() Theme {
	reset := lipgloss.NewStyle()
	return Theme{
		Name:      "nocolor",
		Accent:    reset.Bold(true),
		Dim:       reset,
		Text:      reset,
		Title:     reset.Bold(true),
		Error:     reset.Bold(true),
		Success:   reset.Bold(true),
		Warning:   reset.Bold(true),
		Border:    reset,
		Highlight: reset.Reverse(true),
		Lyric:     reset.Reverse(true),
		NoColor:   true,
	}
}

// coverColors are used for tracks that arrive without art or a color.
var coverColors = []string{"#E76F51", "#F4A261", "#E9C46A", "#2A9D8F", "#264653", "#8E7DBE", "#D1495B", "#00798C"}

// FallbackColor picks a stable cover color for seed.
func FallbackColor(seed string) string {
	h := fnv.New32a()
	h.Write([]byte(seed))
	return coverColors[h.Sum32()%uint32(len(coverColors))]
}

// Swatch renders a block of the cover color standing in for artwork.
func (t Theme) Swatch(color string, width int) string {
	if width <= 0 {
		return ""
	}
	block := strings.Repeat("█", width)
	if t.NoColor || color == "" {
		return block
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(block)
}

// ProgressBar draws progress in [0,1] across width cells.
func (t Theme) ProgressBar(progress float64, width int) string {
	if width <= 0 {
		return ""
	}
	if math.IsNaN(progress) || progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(math.Round(progress * float64(width)))
	return t.Accent.Render(strings.Repeat("━", filled)) + t.Dim.Render(strings.Repeat("─", width-filled))
}

// FormatDuration renders d as m:ss, or h:mm:ss past an hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Round(time.Second) / time.Second)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, (s/60)%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
