package app

import (
	"fmt"
	"strings"

	"github.com/cadenza/cadenza/internal/lyrics"
	"github.com/cadenza/cadenza/internal/provider"
	"github.com/cadenza/cadenza/internal/session"
	"github.com/cadenza/cadenza/internal/ui"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
)

const (
	// lyricWindow is how many words of lyrics the full player shows at once.
	lyricWindow = 9
	queueWindow = 5
)

func (m Model) View() string {
	if m.showHelp {
		return m.renderHelp()
	}
	var main string
	if m.snap.FullPlayerVisible {
		main = m.renderFullPlayer()
	} else {
		main = m.renderLibrary()
	}
	parts := []string{m.renderHeader(), main, m.renderStatus()}
	if m.snap.MiniPlayerVisible {
		parts = append(parts, m.renderMiniPlayer())
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	title := "Cadenza ▸ " + m.section.String()
	if m.snap.FullPlayerVisible {
		title = "Cadenza ▸ Now Playing"
	}
	user := ""
	if m.user.UserID != "" {
		name := lo.CoalesceOrEmpty(m.user.DisplayName, m.user.Email, m.user.UserID)
		if m.tier != "" {
			name += " (" + m.tier + ")"
		}
		user = "  " + m.theme.Dim.Render(name)
	}
	return m.theme.Title.Render(title) + user
}

func (m Model) renderStatus() string {
	if m.searching {
		return m.theme.Accent.Render("Search: ") + m.theme.Text.Render(m.searchQ+"▏")
	}
	if m.naming {
		return m.theme.Accent.Render("New playlist: ") + m.theme.Text.Render(m.searchQ+"▏")
	}
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return m.theme.Error.Render(m.status)
	}
	return m.theme.Dim.Render(m.status)
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, sectionCount)
	for s := section(0); s < sectionCount; s++ {
		if s == m.section {
			tabs = append(tabs, m.theme.Highlight.Render("["+s.String()+"]"))
		} else {
			tabs = append(tabs, m.theme.Dim.Render(" "+s.String()+" "))
		}
	}
	return strings.Join(tabs, " ")
}

func (m Model) cursor(i int) string {
	if i == m.selection {
		return "⏵ "
	}
	return "  "
}

func (m Model) renderLibrary() string {
	var b strings.Builder
	b.WriteString(m.renderTabs() + "\n\n")
	if m.loading {
		b.WriteString(m.theme.Dim.Render("Loading…") + "\n")
		return b.String()
	}

	if m.inTracks {
		b.WriteString(m.theme.Title.Render(m.listTitle) + "\n")
		if len(m.tracks) == 0 {
			b.WriteString(m.theme.Dim.Render("No tracks") + "\n")
		}
		for _, i := range m.visible(len(m.tracks)) {
			b.WriteString(m.renderTrackLine(i, m.tracks[i]) + "\n")
		}
		return b.String()
	}

	switch m.section {
	case sectionAlbums:
		for _, i := range m.visible(len(m.albums)) {
			a := m.albums[i]
			b.WriteString(m.cursor(i) + m.theme.Text.Render(fmt.Sprintf("%s (%d)", a.Name, a.TrackCount)) + "\n")
		}
	case sectionCategories:
		for _, i := range m.visible(len(m.categories)) {
			b.WriteString(m.cursor(i) + m.theme.Text.Render(m.categories[i].Name) + "\n")
		}
	case sectionPlaylists:
		if len(m.playlists) == 0 {
			b.WriteString(m.theme.Dim.Render("No playlists") + "\n")
		}
		for _, i := range m.visible(len(m.playlists)) {
			p := m.playlists[i]
			b.WriteString(m.cursor(i) + m.theme.Swatch(p.CoverColor, 2) + " " + m.theme.Text.Render(p.Name) + "\n")
		}
	}
	return b.String()
}

func (m Model) renderTrackLine(i int, t provider.Track) string {
	line := fmt.Sprintf("%s — %s", t.Artist, t.Title)
	if d := t.Duration(); d > 0 {
		line += " (" + ui.FormatDuration(d) + ")"
	}
	marks := ""
	if t.HasRendition(provider.Instrumental) {
		marks += m.glyph(" 🎹", " [inst]")
	}
	if m.favs != nil && m.favs.IsFavorite(t.ID) {
		marks += m.glyph(" ♥", " *")
	}
	style := m.theme.Text
	if m.snap.Track != nil && m.snap.Track.ID == t.ID {
		style = m.theme.Accent
	}
	return m.cursor(i) + style.Render(line) + m.theme.Dim.Render(marks)
}

// visible returns the indices of a list of n rows that fit on screen around
// the selection.
func (m Model) visible(n int) []int {
	rows := m.height - 8
	if m.snap.MiniPlayerVisible {
		rows -= 2
	}
	if m.height == 0 || rows <= 0 || rows >= n {
		rows = n
	}
	start := clamp(m.selection-rows/2, 0, max(0, n-rows))
	out := make([]int, 0, rows)
	for i := start; i < start+rows && i < n; i++ {
		out = append(out, i)
	}
	return out
}

func (m Model) glyph(emoji, plain string) string {
	if m.cfg.UI.NoEmoji {
		return plain
	}
	return emoji
}

func (m Model) statusGlyph(s session.Status) string {
	switch s {
	case session.Loading:
		return m.glyph("⏳", "...")
	case session.Paused:
		return "⏸"
	case session.Playing:
		return "⏵"
	}
	return "⏹"
}

func renditionLabel(r provider.Rendition) string {
	if r == provider.Instrumental {
		return "Instrumental"
	}
	return "Vocal"
}

func (m Model) renderMiniPlayer() string {
	s := m.snap
	if s.Track == nil {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	color := lo.CoalesceOrEmpty(s.Color, ui.FallbackColor(s.Track.ID))
	info := fmt.Sprintf("%s %s — %s  [%s]  %s / %s",
		m.statusGlyph(s.Status), s.Track.Artist, s.Track.Title, renditionLabel(s.Rendition),
		ui.FormatDuration(s.Elapsed), ui.FormatDuration(s.Duration))
	bar := m.theme.ProgressBar(s.Progress, max(10, width-2))
	return m.theme.Swatch(color, 2) + " " + m.theme.Text.Render(info) + "\n" + bar
}

func (m Model) renderFullPlayer() string {
	s := m.snap
	if s.Track == nil {
		return m.theme.Dim.Render("Nothing playing")
	}
	t := s.Track
	width := m.width
	if width <= 0 {
		width = 80
	}
	color := lo.CoalesceOrEmpty(s.Color, ui.FallbackColor(t.ID))

	var b strings.Builder
	art := m.theme.Swatch(color, 12)
	b.WriteString(art + "\n" + art + "\n")
	if s.ArtURL != "" {
		b.WriteString(m.theme.Dim.Render(s.ArtURL) + "\n")
	}
	b.WriteString("\n")

	fav := ""
	if m.favs != nil && m.favs.IsFavorite(t.ID) {
		fav = " " + m.glyph("♥", "*")
	}
	b.WriteString(m.theme.Accent.Render(t.Title) + m.theme.Highlight.Render(fav) + "\n")
	b.WriteString(m.theme.Text.Render(t.Artist) + "\n")

	versions := m.theme.Highlight.Render(renditionLabel(s.Rendition))
	if other := otherRendition(s.Rendition); t.HasRendition(other) {
		versions += m.theme.Dim.Render("  " + renditionLabel(other) + " available (" + m.keys.SwitchVersion.help() + ")")
	}
	b.WriteString(versions + "\n\n")

	b.WriteString(m.theme.ProgressBar(s.Progress, max(10, width-4)) + "\n")
	b.WriteString(m.theme.Dim.Render(fmt.Sprintf("%s %s / %s", m.statusGlyph(s.Status), ui.FormatDuration(s.Elapsed), ui.FormatDuration(s.Duration))) + "\n\n")

	if line := m.renderLyrics(); line != "" {
		b.WriteString(line + "\n\n")
	}
	if link := t.PurchaseLink(s.Rendition); link != "" {
		b.WriteString(m.theme.Dim.Render("Buy: ") + m.theme.Text.Render(link) + "\n")
	}
	if s.Index >= 0 && s.Index+1 < len(s.Queue) {
		next := s.Queue[s.Index+1]
		b.WriteString(m.theme.Dim.Render(fmt.Sprintf("Up next: %s — %s", next.Artist, next.Title)) + "\n")
	}
	if len(s.Queue) > 1 {
		b.WriteString("\n" + m.renderQueue())
	}
	return b.String()
}

// renderQueue lists a window of the queue around the selected entry.
func (m Model) renderQueue() string {
	q := m.snap.Queue
	sel := clamp(m.queueSel, 0, len(q)-1)
	start := clamp(sel-queueWindow/2, 0, max(len(q)-queueWindow, 0))
	end := min(start+queueWindow, len(q))

	var b strings.Builder
	b.WriteString(m.theme.Accent.Render(fmt.Sprintf("Queue (%d)", len(q))) + "\n")
	for i := start; i < end; i++ {
		mark := "  "
		if i == sel {
			mark = "⏵ "
		}
		line := fmt.Sprintf("%d. %s — %s", i+1, q[i].Artist, q[i].Title)
		if i == m.snap.Index {
			b.WriteString(mark + m.theme.Highlight.Render(line+" "+m.glyph("♪", "(playing)")) + "\n")
			continue
		}
		b.WriteString(mark + m.theme.Text.Render(line) + "\n")
	}
	return b.String()
}

// renderLyrics shows the words around the one being sung.
func (m Model) renderLyrics() string {
	if len(m.lyricWords) == 0 {
		return ""
	}
	active := lyrics.ActiveIndex(m.lyricWords, m.snap.Elapsed)
	words, pos := lyrics.Line(m.lyricWords, active, lyricWindow)
	out := make([]string, len(words))
	for i, w := range words {
		if i == pos {
			out[i] = m.theme.Lyric.Render(w)
		} else {
			out[i] = m.theme.Text.Render(w)
		}
	}
	return strings.Join(out, " ")
}

func otherRendition(r provider.Rendition) provider.Rendition {
	if r == provider.Instrumental {
		return provider.Vocal
	}
	return provider.Instrumental
}

func (m Model) renderHelp() string {
	k := m.keys
	row := func(keys, what string) string { return fmt.Sprintf("  %-14s: %s", keys, what) }
	lines := []string{
		m.theme.Title.Render("Help"),
		"",
		m.theme.Accent.Render("Global"),
		row("tab/shift+tab", "Switch section"),
		row(k.Search.help(), "Search songs"),
		row("?", "Toggle help"),
		row(k.Quit.help(), "Quit"),
		"",
		m.theme.Accent.Render("Player"),
		row(k.PlayPause.help(), "Play/Pause"),
		row(k.NextTrack.help()+" / "+k.PrevTrack.help(), "Next / Previous track"),
		row(k.SeekBackward.help()+" / "+k.SeekForward.help(), fmt.Sprintf("Seek -%ds / +%ds", m.cfg.Player.SeekStepSeconds, m.cfg.Player.SeekStepSeconds)),
		row(k.SwitchVersion.help(), "Switch vocal / instrumental"),
		row(k.FullPlayer.help(), "Open / close full player"),
		row("0-9", "Jump to 0%-90% (full player)"),
		row("j/k", "Pick queue entry (full player)"),
		row("J/K", "Move queue entry down / up"),
		row("d", "Remove queue entry (full player)"),
		row(k.Stop.help(), "Stop and clear queue"),
		row(k.Favorite.help(), "Toggle favorite"),
		"",
		m.theme.Accent.Render("Library"),
		row("j / k", "Move selection down / up"),
		row("enter", "Open / Play from here"),
		row("a / A", "Add to queue / Play next"),
		row("+", "Add to the last opened playlist"),
		row("c", "Create playlist (Playlists)"),
		row("d", "Delete playlist / remove track from it"),
		row("esc", "Back"),
	}
	return strings.Join(lines, "\n")
}
