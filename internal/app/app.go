package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cadenza/cadenza/internal/config"
	"github.com/cadenza/cadenza/internal/favorites"
	"github.com/cadenza/cadenza/internal/lyrics"
	"github.com/cadenza/cadenza/internal/notify"
	"github.com/cadenza/cadenza/internal/playback"
	"github.com/cadenza/cadenza/internal/provider"
	"github.com/cadenza/cadenza/internal/queue"
	"github.com/cadenza/cadenza/internal/session"
	"github.com/cadenza/cadenza/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"
)

type section int

const (
	sectionSongs section = iota
	sectionAlbums
	sectionCategories
	sectionPlaylists
	sectionFavorites
	sectionCount
)

func (s section) String() string {
	switch s {
	case sectionSongs:
		return "Songs"
	case sectionAlbums:
		return "Albums"
	case sectionCategories:
		return "Categories"
	case sectionPlaylists:
		return "Playlists"
	case sectionFavorites:
		return "Favorites"
	default:
		return "Unknown"
	}
}

// Deps are the collaborators the UI drives.
type Deps struct {
	Config     *config.Config
	Backend    provider.Backend
	Controller *playback.Controller
	Favorites  *favorites.Store
	Notifier   notify.Notifier
	Theme      ui.Theme
	Logger     *slog.Logger
	// Start, when set, is shown first instead of the song list.
	Start *StartupOptions
}

// StartupOptions selects what the UI shows, and optionally plays, on launch.
type StartupOptions struct {
	Title  string
	Art    string
	Color  string
	Query  provider.TrackQuery
	Play   bool
	// Restore, when set, replays a saved session once the UI is running.
	Restore *queue.Saved
}

type Model struct {
	cfg      *config.Config
	backend  provider.Backend
	ctrl     *playback.Controller
	favs     *favorites.Store
	notifier notify.Notifier
	theme    ui.Theme
	keys     keyMap
	log      *slog.Logger
	start    *StartupOptions

	sub         <-chan session.Snapshot
	unsubscribe func()
	snap        session.Snapshot
	errSeq      uint64

	user provider.Session
	tier string

	section    section
	albums     []provider.Album
	categories []provider.Category
	playlists  []provider.Playlist

	// inTracks is set while a track list is shown in place of the section list.
	inTracks  bool
	tracks    []provider.Track
	listQuery provider.TrackQuery
	listTitle string
	listArt   string
	listColor string
	selection int

	searching bool
	// naming reuses the search prompt to read a new playlist name.
	naming  bool
	searchQ string

	// target is the playlist "+" adds to: the last one opened.
	target provider.Playlist

	// queueSel is the queue entry the full player's editing keys act on.
	queueSel int

	loading    bool
	showHelp   bool
	status     string
	statusErr  bool
	statusSeq  int
	width      int
	height     int
	lyricsID   string
	lyricWords []lyrics.Word
}

func New(d Deps) Model {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	m := Model{
		cfg:      d.Config,
		backend:  d.Backend,
		ctrl:     d.Controller,
		favs:     d.Favorites,
		notifier: d.Notifier,
		theme:    d.Theme,
		keys:     newKeyMap(d.Config.Keybindings),
		log:      d.Logger,
		start:    d.Start,
		snap:     session.Empty(),
		status:   "Loading…",
	}
	if d.Controller != nil {
		m.sub, m.unsubscribe = d.Controller.Publisher().Subscribe()
		m.snap = d.Controller.Snapshot()
		m.errSeq = m.snap.ErrorSeq
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{watchSessionCmd(m.sub), m.loadUserCmd()}
	switch s := m.start; {
	case s == nil:
		cmds = append(cmds, m.loadTracksCmd(sectionSongs.String(), "", "", provider.TrackQuery{Sort: provider.SortTitle}))
	case s.Restore != nil:
		ctrl, saved := m.ctrl, *s.Restore
		cmds = append(cmds,
			m.loadTracksCmd(sectionSongs.String(), "", "", provider.TrackQuery{Sort: provider.SortTitle}),
			controlCmd("resume", func(ctx context.Context) error { return ctrl.Restore(ctx, saved) }))
	default:
		cmds = append(cmds, m.loadTracksCmd(s.Title, s.Art, s.Color, s.Query))
	}
	return tea.Batch(cmds...)
}

// Close drops the session subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) setStatus(s string) (Model, tea.Cmd) {
	m.status, m.statusErr = s, false
	m.statusSeq++
	return m, clearStatusCmd(m.statusSeq)
}

func (m Model) setError(err error) (Model, tea.Cmd) {
	m.status, m.statusErr = friendlyError(err), true
	m.statusSeq++
	return m, clearStatusCmd(m.statusSeq)
}

func friendlyError(err error) string {
	switch {
	case errors.Is(err, playback.ErrRenditionUnavailable):
		return "That version isn't available for this track"
	case errors.Is(err, playback.ErrMissingFile):
		return "Track has no audio file: " + err.Error()
	case errors.Is(err, playback.ErrNothingPlaying):
		return "Nothing is playing"
	case provider.IsUnauthorized(err):
		return "Sign in required"
	case provider.IsRateLimited(err):
		return "Backend is rate limiting requests, try again shortly"
	case provider.IsOffline(err):
		return "Can't reach the music service, check your connection"
	case provider.IsTemporary(err):
		return "The music service had a problem, try again"
	case errors.Is(err, queue.ErrCurrent):
		return "The playing track can't be removed from the queue"
	case errors.Is(err, favorites.ErrSignedOut):
		return "Sign in to keep favorites"
	}
	return err.Error()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case snapshotMsg:
		return m.applySnapshot(session.Snapshot(msg))
	case userMsg:
		m.user, m.tier = msg.user, msg.tier
		if msg.err != nil {
			if provider.IsUnauthorized(msg.err) {
				m.status = "Signed out"
				return m, nil
			}
			return m.setError(msg.err)
		}
		name := lo.CoalesceOrEmpty(msg.user.DisplayName, msg.user.Email, msg.user.UserID)
		return m.setStatus("Signed in as " + name)
	case sectionMsg:
		m.loading = false
		if msg.err != nil {
			return m.setError(msg.err)
		}
		switch msg.section {
		case sectionAlbums:
			m.albums = msg.albums
		case sectionCategories:
			m.categories = msg.categories
		case sectionPlaylists:
			m.playlists = msg.playlists
		}
		return m, nil
	case tracksMsg:
		m.loading = false
		if msg.err != nil {
			return m.setError(msg.err)
		}
		m.inTracks = true
		m.tracks = msg.tracks
		m.listQuery = msg.query
		m.listTitle, m.listArt, m.listColor = msg.title, msg.art, msg.color
		m.selection = 0
		if s := m.start; s != nil && s.Play && len(msg.tracks) > 0 {
			m.start = nil
			return m, m.playCmd(msg.tracks, 0, msg.art, m.colorFor(msg.color, msg.tracks[0]))
		}
		m.start = nil
		return m.setStatus(fmt.Sprintf("%s: %d tracks", msg.title, len(msg.tracks)))
	case actionMsg:
		if quiet(msg.err) {
			return m, nil
		}
		m.log.Debug("action failed", slog.String("action", msg.label), slog.Any("err", msg.err))
		return m.setError(msg.err)
	case libraryMsg:
		if msg.err != nil {
			return m.setError(msg.err)
		}
		var cmd tea.Cmd
		m, cmd = m.setStatus(msg.status)
		switch {
		case msg.reloadPlaylists && m.section == sectionPlaylists && !m.inTracks:
			return m, tea.Batch(cmd, m.loadSectionCmd(sectionPlaylists))
		case msg.reloadTracks && m.inTracks:
			return m, tea.Batch(cmd, m.loadTracksCmd(m.listTitle, m.listArt, m.listColor, m.listQuery))
		}
		return m, cmd
	case favoriteMsg:
		if msg.err != nil {
			return m.setError(msg.err)
		}
		if msg.on {
			return m.setStatus("Added to favorites")
		}
		if m.section == sectionFavorites && m.inTracks {
			return m, m.loadTracksCmd(sectionFavorites.String(), "", "", provider.TrackQuery{FavoritesOf: m.user.UserID})
		}
		return m.setStatus("Removed from favorites")
	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status, m.statusErr = "", false
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// applySnapshot records the latest session state and notifies the user once
// per surfaced failure.
func (m Model) applySnapshot(s session.Snapshot) (tea.Model, tea.Cmd) {
	m.snap = s
	cmds := []tea.Cmd{watchSessionCmd(m.sub)}
	if s.ErrorSeq > m.errSeq {
		m.errSeq = s.ErrorSeq
		if s.LastError != nil {
			var cmd tea.Cmd
			m, cmd = m.setError(s.LastError)
			cmds = append(cmds, cmd, m.notifyCmd("Cadenza", friendlyError(s.LastError)))
		}
	}
	if s.Track == nil {
		m.lyricsID, m.lyricWords = "", nil
	} else if s.Track.ID != m.lyricsID {
		m.lyricsID = s.Track.ID
		words, err := lyrics.Parse(s.Track.LyricsTimed)
		if err != nil {
			m.log.Warn("bad lyrics", slog.String("track", s.Track.ID), slog.Any("err", err))
		}
		m.lyricWords = words
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.searching || m.naming {
		return m.handleSearchKey(msg)
	}
	k := m.keys
	step := time.Duration(m.cfg.Player.SeekStepSeconds) * time.Second
	ctrl := m.ctrl

	switch {
	case k.Quit.matches(msg):
		return m, tea.Quit
	case msg.String() == "?":
		m.showHelp = !m.showHelp
		return m, nil
	case k.PlayPause.matches(msg):
		ctrl.TogglePause()
		return m, nil
	case k.NextTrack.matches(msg):
		return m, controlCmd("next", ctrl.PlayNext)
	case k.PrevTrack.matches(msg):
		return m, controlCmd("previous", ctrl.PlayPrevious)
	case k.SeekForward.matches(msg):
		if err := ctrl.SeekBy(step); err != nil {
			return m.setError(err)
		}
		return m, nil
	case k.SeekBackward.matches(msg):
		if err := ctrl.SeekBy(-step); err != nil {
			return m.setError(err)
		}
		return m, nil
	case k.SwitchVersion.matches(msg):
		return m, controlCmd("switch version", ctrl.ToggleVersion)
	case k.Stop.matches(msg):
		ctrl.Stop()
		return m, nil
	case k.FullPlayer.matches(msg):
		if m.snap.FullPlayerVisible {
			ctrl.HidePlayer()
		} else {
			m.queueSel = m.snap.Index + 1
			ctrl.ShowPlayer()
		}
		return m, nil
	case k.Favorite.matches(msg):
		return m.toggleFavorite()
	case k.Search.matches(msg):
		m.searching = true
		m.searchQ = ""
		return m, nil
	}

	if m.snap.FullPlayerVisible {
		return m.handlePlayerKey(msg)
	}

	switch msg.String() {
	case "j", "down":
		if m.selection < m.listLen()-1 {
			m.selection++
		}
	case "k", "up":
		if m.selection > 0 {
			m.selection--
		}
	case "tab", "right":
		return m.switchSection((m.section + 1) % sectionCount)
	case "shift+tab", "left":
		return m.switchSection((m.section + sectionCount - 1) % sectionCount)
	case "esc", "backspace":
		if m.inTracks && m.section != sectionSongs && m.section != sectionFavorites {
			m.inTracks = false
			m.tracks = nil
			m.selection = 0
		}
	case "enter":
		return m.handleEnter()
	case "a":
		if t, ok := m.selectedTrack(); ok {
			return m, controlCmd("enqueue", func(ctx context.Context) error { return ctrl.Enqueue(ctx, t) })
		}
	case "A":
		if t, ok := m.selectedTrack(); ok {
			return m, controlCmd("enqueue next", func(ctx context.Context) error { return ctrl.EnqueueNext(ctx, t) })
		}
	case "+":
		if t, ok := m.selectedTrack(); ok {
			if m.target.ID == "" {
				return m.setStatus("Open a playlist first to pick where tracks go")
			}
			return m, m.addToPlaylistCmd(m.target, t)
		}
	case "c":
		if m.section == sectionPlaylists && !m.inTracks {
			if m.user.UserID == "" {
				return m.setError(provider.ErrUnauthorized)
			}
			m.naming = true
			m.searchQ = ""
		}
	case "d":
		return m.handleDelete()
	}
	return m, nil
}

// handlePlayerKey handles the full player: seeking by digit and editing the
// queue around the selected entry.
func (m Model) handlePlayerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl := m.ctrl
	last := max(len(m.snap.Queue)-1, 0)
	sel := clamp(m.queueSel, 0, last)
	var err error
	switch s := msg.String(); s {
	case "esc", "backspace":
		ctrl.HidePlayer()
	case "j", "down":
		m.queueSel = clamp(sel+1, 0, last)
	case "k", "up":
		m.queueSel = clamp(sel-1, 0, last)
	case "d":
		err = ctrl.RemoveAt(sel)
	case "J":
		if sel < last {
			if err = ctrl.Move(sel, sel+1); err == nil {
				m.queueSel = sel + 1
			}
		}
	case "K":
		if sel > 0 {
			if err = ctrl.Move(sel, sel-1); err == nil {
				m.queueSel = sel - 1
			}
		}
	default:
		if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
			// Digits jump through the track in tenths.
			err = ctrl.SeekTo(float64(s[0]-'0') / 10)
		}
	}
	if err != nil {
		return m.setError(err)
	}
	return m, nil
}

// handleDelete removes the selected playlist, or the selected track from the
// open playlist.
func (m Model) handleDelete() (tea.Model, tea.Cmd) {
	if m.section != sectionPlaylists {
		return m, nil
	}
	if !m.inTracks {
		if len(m.playlists) == 0 {
			return m, nil
		}
		p := m.playlists[clamp(m.selection, 0, len(m.playlists)-1)]
		if p.ID == m.target.ID {
			m.target = provider.Playlist{}
		}
		return m, m.deletePlaylistCmd(p)
	}
	t, ok := m.selectedTrack()
	if !ok || m.listQuery.PlaylistID == "" {
		return m, nil
	}
	p := provider.Playlist{ID: m.listQuery.PlaylistID, Name: m.listTitle}
	return m, m.removeFromPlaylistCmd(p, t)
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.searching, m.naming = false, false
		return m, nil
	case tea.KeyEnter:
		if m.naming {
			m.naming = false
			name := strings.TrimSpace(m.searchQ)
			if name == "" {
				return m, nil
			}
			return m, m.createPlaylistCmd(name)
		}
		m.searching = false
		m.section = sectionSongs
		m.loading = true
		q := strings.TrimSpace(m.searchQ)
		return m, m.loadTracksCmd("Search: "+q, "", "", provider.TrackQuery{Search: q})
	case tea.KeyBackspace:
		if r := []rune(m.searchQ); len(r) > 0 {
			m.searchQ = string(r[:len(r)-1])
		}
		return m, nil
	case tea.KeySpace:
		m.searchQ += " "
		return m, nil
	case tea.KeyRunes:
		m.searchQ += string(msg.Runes)
	}
	return m, nil
}

func (m Model) switchSection(sec section) (tea.Model, tea.Cmd) {
	m.section = sec
	m.selection = 0
	m.inTracks = false
	m.tracks = nil
	m.loading = true
	switch sec {
	case sectionSongs:
		return m, m.loadTracksCmd(sec.String(), "", "", provider.TrackQuery{Sort: provider.SortTitle})
	case sectionFavorites:
		if m.user.UserID == "" {
			m.loading = false
			return m.setError(favorites.ErrSignedOut)
		}
		return m, m.loadTracksCmd(sec.String(), "", "", provider.TrackQuery{FavoritesOf: m.user.UserID})
	}
	return m, m.loadSectionCmd(sec)
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	if m.inTracks {
		if len(m.tracks) == 0 {
			return m, nil
		}
		idx := clamp(m.selection, 0, len(m.tracks)-1)
		return m, m.playCmd(m.tracks, idx, m.listArt, m.colorFor(m.listColor, m.tracks[idx]))
	}
	m.loading = true
	switch m.section {
	case sectionAlbums:
		if len(m.albums) > 0 {
			a := m.albums[clamp(m.selection, 0, len(m.albums)-1)]
			return m, m.loadTracksCmd(a.Name, m.backend.PublicURL(a.CoverPath), "", provider.TrackQuery{AlbumID: a.ID})
		}
	case sectionCategories:
		if len(m.categories) > 0 {
			c := m.categories[clamp(m.selection, 0, len(m.categories)-1)]
			return m, m.loadTracksCmd(c.Name, m.backend.PublicURL(c.IconPath), "", provider.TrackQuery{CategoryID: c.ID})
		}
	case sectionPlaylists:
		if len(m.playlists) > 0 {
			p := m.playlists[clamp(m.selection, 0, len(m.playlists)-1)]
			m.target = p
			return m, m.loadTracksCmd(p.Name, "", p.CoverColor, provider.TrackQuery{PlaylistID: p.ID})
		}
	}
	m.loading = false
	return m, nil
}

// toggleFavorite targets the playing track in the full player and the
// selected one elsewhere.
func (m Model) toggleFavorite() (tea.Model, tea.Cmd) {
	if m.favs == nil {
		return m, nil
	}
	var id string
	if m.snap.FullPlayerVisible && m.snap.Track != nil {
		id = m.snap.Track.ID
	} else if t, ok := m.selectedTrack(); ok {
		id = t.ID
	} else if m.snap.Track != nil {
		id = m.snap.Track.ID
	}
	if id == "" {
		return m, nil
	}
	return m, m.toggleFavoriteCmd(id)
}

func (m Model) colorFor(color string, t provider.Track) string {
	if color != "" {
		return color
	}
	return ui.FallbackColor(t.ID)
}

func (m Model) selectedTrack() (provider.Track, bool) {
	if !m.inTracks || len(m.tracks) == 0 {
		return provider.Track{}, false
	}
	return m.tracks[clamp(m.selection, 0, len(m.tracks)-1)], true
}

func (m Model) listLen() int {
	if m.inTracks {
		return len(m.tracks)
	}
	switch m.section {
	case sectionAlbums:
		return len(m.albums)
	case sectionCategories:
		return len(m.categories)
	case sectionPlaylists:
		return len(m.playlists)
	}
	return 0
}

func clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
