package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cadenza/cadenza/internal/playback"
	"github.com/cadenza/cadenza/internal/provider"
	"github.com/cadenza/cadenza/internal/session"
	"github.com/cadenza/cadenza/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
)

// loadTimeout bounds catalog calls; playback calls carry their own resolve timeout.
const loadTimeout = 10 * time.Second

type snapshotMsg session.Snapshot

type userMsg struct {
	user provider.Session
	tier string
	err  error
}

type sectionMsg struct {
	section    section
	albums     []provider.Album
	categories []provider.Category
	playlists  []provider.Playlist
	err        error
}

// tracksMsg carries a track listing and the cover to play it with.
type tracksMsg struct {
	title  string
	art    string
	color  string
	query  provider.TrackQuery
	tracks []provider.Track
	err    error
}

// actionMsg reports the outcome of a controller call made off the UI loop.
type actionMsg struct {
	label string
	err   error
}

// libraryMsg reports a playlist edit and which listing it invalidated.
type libraryMsg struct {
	status          string
	reloadPlaylists bool
	reloadTracks    bool
	err             error
}

type favoriteMsg struct {
	trackID string
	on      bool
	err     error
}

type clearStatusMsg struct{ seq int }

// watchSessionCmd waits for the next snapshot. It yields nil once the
// publisher is closed, ending the watch.
func watchSessionCmd(ch <-chan session.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}

func (m Model) loadUserCmd() tea.Cmd {
	backend, favs := m.backend, m.favs
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		s, err := backend.CurrentSession(ctx)
		if err != nil {
			return userMsg{err: err}
		}
		if favs != nil {
			if err := favs.Load(ctx, s.UserID); err != nil {
				return userMsg{user: s, err: err}
			}
		}
		msg := userMsg{user: s}
		// A missing profile row only hides the tier.
		if p, err := backend.Profile(ctx, s.UserID); err == nil {
			msg.tier = p.SubscriptionTier
		}
		return msg
	}
}

func (m Model) loadSectionCmd(sec section) tea.Cmd {
	backend, userID := m.backend, m.user.UserID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		msg := sectionMsg{section: sec}
		switch sec {
		case sectionAlbums:
			msg.albums, msg.err = backend.ListAlbums(ctx)
		case sectionCategories:
			msg.categories, msg.err = backend.ListCategories(ctx)
		case sectionPlaylists:
			if userID == "" {
				msg.err = provider.ErrUnauthorized
				break
			}
			msg.playlists, msg.err = backend.ListPlaylists(ctx, userID)
		}
		return msg
	}
}

func (m Model) loadTracksCmd(title, art, color string, q provider.TrackQuery) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		tracks, err := backend.ListTracks(ctx, q)
		return tracksMsg{title: title, art: art, color: color, query: q, tracks: tracks, err: err}
	}
}

// controlCmd runs a blocking controller call off the UI loop.
func controlCmd(label string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{label: label, err: fn(context.Background())}
	}
}

func (m Model) playCmd(tracks []provider.Track, start int, art, color string) tea.Cmd {
	ctrl := m.ctrl
	return controlCmd("play", func(ctx context.Context) error {
		return ctrl.PlayQueue(ctx, tracks, start, art, color)
	})
}

func (m Model) createPlaylistCmd(name string) tea.Cmd {
	backend, userID := m.backend, m.user.UserID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		p, err := backend.CreatePlaylist(ctx, userID, name, ui.FallbackColor(name))
		if err != nil {
			return libraryMsg{err: err}
		}
		return libraryMsg{status: "Created playlist " + p.Name, reloadPlaylists: true}
	}
}

func (m Model) deletePlaylistCmd(p provider.Playlist) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		if err := backend.DeletePlaylist(ctx, p.ID); err != nil {
			return libraryMsg{err: err}
		}
		return libraryMsg{status: "Deleted playlist " + p.Name, reloadPlaylists: true}
	}
}

// addToPlaylistCmd appends t to the end of p.
func (m Model) addToPlaylistCmd(p provider.Playlist, t provider.Track) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		current, err := backend.ListTracks(ctx, provider.TrackQuery{PlaylistID: p.ID})
		if err != nil {
			return libraryMsg{err: err}
		}
		if err := backend.AddToPlaylist(ctx, p.ID, t.ID, len(current)); err != nil {
			return libraryMsg{err: err}
		}
		return libraryMsg{status: fmt.Sprintf("Added %s to %s", t.Title, p.Name)}
	}
}

func (m Model) removeFromPlaylistCmd(p provider.Playlist, t provider.Track) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		if err := backend.RemoveFromPlaylist(ctx, p.ID, t.ID); err != nil {
			return libraryMsg{err: err}
		}
		return libraryMsg{status: fmt.Sprintf("Removed %s from %s", t.Title, p.Name), reloadTracks: true}
	}
}

func (m Model) toggleFavoriteCmd(trackID string) tea.Cmd {
	favs := m.favs
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		on, err := favs.Toggle(ctx, trackID)
		return favoriteMsg{trackID: trackID, on: on, err: err}
	}
}

func (m Model) notifyCmd(title, message string) tea.Cmd {
	n := m.notifier
	if n == nil {
		return nil
	}
	return func() tea.Msg {
		_ = n.Notify(title, message)
		return nil
	}
}

func clearStatusCmd(seq int) tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg { return clearStatusMsg{seq: seq} })
}

// quiet reports errors that need no user-facing message.
func quiet(err error) bool {
	return err == nil || errors.Is(err, playback.ErrSuperseded) || errors.Is(err, context.Canceled)
}
