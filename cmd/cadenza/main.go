package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cadenza/cadenza/internal/app"
	"github.com/cadenza/cadenza/internal/audio"
	"github.com/cadenza/cadenza/internal/config"
	"github.com/cadenza/cadenza/internal/favorites"
	"github.com/cadenza/cadenza/internal/logging"
	"github.com/cadenza/cadenza/internal/notify"
	"github.com/cadenza/cadenza/internal/playback"
	"github.com/cadenza/cadenza/internal/provider"
	"github.com/cadenza/cadenza/internal/providers/local"
	"github.com/cadenza/cadenza/internal/providers/supabase"
	"github.com/cadenza/cadenza/internal/queue"
	"github.com/cadenza/cadenza/internal/resolver"
	"github.com/cadenza/cadenza/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/samber/lo"
)

var version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Cadenza - stream your catalog from the terminal

Usage: cadenza [options]

Options:
  -config string
        Path to config file (default: ~/.config/cadenza/config.toml)
  -version
        Print version and exit

Diagnostics:
  -doctor
        Check configuration, profile and backend
  -scan
        Rescan the music folders of a local profile

Playback:
  -album string
        Open the album with this name
  -category string
        Open the category with this name
  -playlist string
        Open your playlist with this name
  -search string
        Search songs by title or artist
  -play
        Start playing the opened list (use with -album, -category, -playlist or -search)
  -resume
        Continue the queue saved on last exit ([queue] persist = true)

Examples:
  cadenza                               # Start interactive TUI
  cadenza -doctor                       # Check setup
  cadenza -album "Blue Hour" -play      # Play an album
  cadenza -search "rain" -play          # Play search results

`)
	}

	cfgPath := flag.String("config", "", "")
	showVersion := flag.Bool("version", false, "")
	doctor := flag.Bool("doctor", false, "")
	scan := flag.Bool("scan", false, "")
	album := flag.String("album", "", "")
	category := flag.String("category", "", "")
	playlist := flag.String("playlist", "", "")
	search := flag.String("search", "", "")
	autoPlay := flag.Bool("play", false, "")
	resume := flag.Bool("resume", false, "")
	flag.Parse()

	if *showVersion {
		fmt.Println("cadenza", version)
		return
	}

	cfg, resolvedPath, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, logFile, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logFile.Close()
	slog.SetDefault(logger)
	logger.Info("starting cadenza", slog.String("config", resolvedPath), slog.String("version", version))

	if *doctor {
		runDoctor(cfg, resolvedPath, logger)
		return
	}
	if *scan {
		if err := runScan(cfg, logger); err != nil {
			log.Fatalf("scan: %v", err)
		}
		return
	}

	profile, _ := cfg.ProfileByID(cfg.ActiveProfile)
	backend, err := openBackend(cfg, profile)
	if err != nil {
		logger.Error("backend init", slog.String("profile", profile.ID), slog.Any("err", err))
		log.Fatalf("init backend: %v", err)
	}
	if c, ok := backend.(interface{ Close() error }); ok {
		defer c.Close()
	}

	client := &http.Client{Transport: streamTransport(cfg.Player)}
	ctrl := playback.New(playback.Options{
		Output: audio.NewSpeaker(client, logger),
		Resolver: resolver.New(backend, resolver.Options{
			TTL:       cfg.Player.SignedURLTTL(),
			Timeout:   cfg.Player.ResolveTimeout(),
			CacheSize: cfg.Player.URLCacheSize,
			Logger:    logger,
		}),
		SampleInterval:  cfg.Player.SampleInterval(),
		SkipMissing:     playback.SkipPolicy(cfg.Player.SkipMissing),
		OnPlaybackError: playback.FailurePolicy(cfg.Player.OnPlaybackError),
		Logger:          logger,
	})
	defer ctrl.Close()

	var store *queue.PersistenceStore
	if cfg.Queue.Persist {
		store, err = queue.NewPersistenceStore(cfg.Queue.DBPath)
		if err != nil {
			logger.Warn("queue persistence unavailable", slog.Any("err", err))
		} else {
			defer store.Close()
		}
	}

	var start *app.StartupOptions
	if *resume {
		// The replay itself runs inside the UI so the download is not bound
		// by the startup deadline.
		if saved := loadSavedQueue(cfg, store, logger); saved != nil {
			start = &app.StartupOptions{Restore: saved}
		}
	} else {
		start, err = startupOptions(cfg, backend, startFlags{
			album: *album, category: *category, playlist: *playlist, search: *search,
			play: *autoPlay,
		})
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.UI.DesktopNotifications {
		notifier = notify.NewDesktop("Cadenza", logger)
	}

	noColor := os.Getenv("NO_COLOR") != ""
	model := app.New(app.Deps{
		Config:     cfg,
		Backend:    backend,
		Controller: ctrl,
		Favorites:  favorites.New(backend),
		Notifier:   notifier,
		Theme:      ui.GetTheme(cfg.UI.Theme, noColor),
		Logger:     logger,
		Start:      start,
	})
	defer model.Close()

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		logger.Error("run tui", slog.Any("err", err))
		log.Fatalf("tui: %v", err)
	}

	if store != nil {
		saveQueue(cfg, store, ctrl, logger)
	}
}

// streamTransport bounds connection setup and the wait for response headers.
// The body download that follows is bounded only by the load's context, since
// audio.Fetch buffers the whole source before decoding.
func streamTransport(p config.PlayerConfig) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = time.Duration(p.NetworkTimeout) * time.Millisecond
	return t
}

func buildBackend(p config.Profile) (provider.Backend, error) {
	switch p.Provider {
	case "supabase":
		return supabase.New(), nil
	case "local":
		return local.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider %s", p.Provider)
	}
}

func openBackend(cfg *config.Config, p config.Profile) (provider.Backend, error) {
	backend, err := buildBackend(p)
	if err != nil {
		return nil, err
	}
	settings := p.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	ctx, cancel := cfg.DeadlineContext()
	defer cancel()
	if p.Provider == "local" {
		// The first scan of a large library can take a while.
		ctx, cancel = context.WithCancel(context.Background())
		defer cancel()
	}
	if err := backend.Initialize(ctx, settings); err != nil {
		return nil, err
	}
	return backend, nil
}

type startFlags struct {
	album, category, playlist, search string
	play                              bool
}

// startupOptions turns the playback flags into the first list the UI opens.
// Names are matched case-insensitively.
func startupOptions(cfg *config.Config, backend provider.Backend, f startFlags) (*app.StartupOptions, error) {
	ctx, cancel := cfg.DeadlineContext()
	defer cancel()

	switch {
	case f.album != "":
		albums, err := backend.ListAlbums(ctx)
		if err != nil {
			return nil, fmt.Errorf("list albums: %w", err)
		}
		a, ok := lo.Find(albums, func(a provider.Album) bool { return strings.EqualFold(a.Name, f.album) })
		if !ok {
			return nil, fmt.Errorf("album %q not found", f.album)
		}
		return &app.StartupOptions{Title: a.Name, Art: backend.PublicURL(a.CoverPath), Query: provider.TrackQuery{AlbumID: a.ID}, Play: f.play}, nil
	case f.category != "":
		cats, err := backend.ListCategories(ctx)
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		c, ok := lo.Find(cats, func(c provider.Category) bool { return strings.EqualFold(c.Name, f.category) })
		if !ok {
			return nil, fmt.Errorf("category %q not found", f.category)
		}
		return &app.StartupOptions{Title: c.Name, Art: backend.PublicURL(c.IconPath), Query: provider.TrackQuery{CategoryID: c.ID}, Play: f.play}, nil
	case f.playlist != "":
		s, err := backend.CurrentSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("playlists need a signed-in user: %w", err)
		}
		lists, err := backend.ListPlaylists(ctx, s.UserID)
		if err != nil {
			return nil, fmt.Errorf("list playlists: %w", err)
		}
		p, ok := lo.Find(lists, func(p provider.Playlist) bool { return strings.EqualFold(p.Name, f.playlist) })
		if !ok {
			return nil, fmt.Errorf("playlist %q not found", f.playlist)
		}
		return &app.StartupOptions{Title: p.Name, Color: p.CoverColor, Query: provider.TrackQuery{PlaylistID: p.ID}, Play: f.play}, nil
	case f.search != "":
		return &app.StartupOptions{Title: "Search: " + f.search, Query: provider.TrackQuery{Search: f.search}, Play: f.play}, nil
	case f.play:
		return &app.StartupOptions{Title: "Songs", Query: provider.TrackQuery{Sort: provider.SortTitle}, Play: true}, nil
	}
	return nil, nil
}

// loadSavedQueue returns the persisted session for the active profile, or nil
// when there is nothing to resume.
func loadSavedQueue(cfg *config.Config, store *queue.PersistenceStore, logger *slog.Logger) *queue.Saved {
	if store == nil {
		logger.Warn("resume requested without queue persistence")
		return nil
	}
	ctx, cancel := cfg.DeadlineContext()
	defer cancel()
	saved, err := store.Load(ctx)
	if err != nil {
		logger.Warn("load saved queue", slog.Any("err", err))
		return nil
	}
	if saved.ProfileID != "" && saved.ProfileID != cfg.ActiveProfile {
		logger.Info("saved queue belongs to another profile", slog.String("profile", saved.ProfileID))
		return nil
	}
	if len(saved.Tracks) == 0 {
		return nil
	}
	return &saved
}

func saveQueue(cfg *config.Config, store *queue.PersistenceStore, ctrl *playback.Controller, logger *slog.Logger) {
	saved := ctrl.Saved()
	saved.ProfileID = cfg.ActiveProfile
	ctx, cancel := cfg.DeadlineContext()
	defer cancel()
	var err error
	if len(saved.Tracks) == 0 {
		err = store.Clear(ctx)
	} else {
		err = store.Save(ctx, saved)
	}
	if err != nil {
		logger.Warn("save queue", slog.Any("err", err))
	}
}

func runDoctor(cfg *config.Config, cfgPath string, logger *slog.Logger) {
	ok := text.FgGreen.Sprint
	bad := text.FgHiRed.Sprint

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Cadenza doctor")
	t.AppendHeader(table.Row{"Check", "Status", "Details"})
	defer t.Render()

	t.AppendRow(table.Row{"Config", ok("OK"), cfgPath})
	dir := cfg.Log.Dir
	if dir == "" {
		dir, _ = logging.StateDir()
	}
	t.AppendRow(table.Row{"Log dir", ok("OK"), dir})
	if cfg.Queue.Persist {
		t.AppendRow(table.Row{"Queue persistence", ok("ON"), lo.CoalesceOrEmpty(cfg.Queue.DBPath, "default")})
	} else {
		t.AppendRow(table.Row{"Queue persistence", text.FgHiBlack.Sprint("OFF"), ""})
	}

	profile, found := cfg.ProfileByID(cfg.ActiveProfile)
	if !found {
		t.AppendRow(table.Row{"Profile", bad("NOT FOUND"), cfg.ActiveProfile})
		return
	}
	t.AppendRow(table.Row{"Profile", ok("OK"), fmt.Sprintf("%s (%s provider)", profile.Name, profile.Provider)})

	backend, err := openBackend(cfg, profile)
	if err != nil {
		t.AppendRow(table.Row{"Backend", bad("ERROR"), err.Error()})
		return
	}
	if c, ok := backend.(interface{ Close() error }); ok {
		defer c.Close()
	}
	ctx, cancel := cfg.DeadlineContext()
	defer cancel()
	if healthy, details := backend.Health(ctx); healthy {
		t.AppendRow(table.Row{"Backend", ok("OK"), details})
	} else {
		t.AppendRow(table.Row{"Backend", bad("UNHEALTHY"), details})
	}
	if s, err := backend.CurrentSession(ctx); err != nil {
		t.AppendRow(table.Row{"Session", bad("SIGNED OUT"), err.Error()})
	} else {
		t.AppendRow(table.Row{"Session", ok("OK"), lo.CoalesceOrEmpty(s.Email, s.DisplayName, s.UserID)})
	}
	logger.Info("doctor complete")
}

func runScan(cfg *config.Config, logger *slog.Logger) error {
	profile, found := cfg.ProfileByID(cfg.ActiveProfile)
	if !found {
		return fmt.Errorf("profile %q not found", cfg.ActiveProfile)
	}
	if profile.Provider != "local" {
		return fmt.Errorf("profile %q uses the %s provider; only local profiles can be scanned", profile.ID, profile.Provider)
	}
	settings := lo.Assign(map[string]any{}, profile.Settings)
	settings["scan_on_start"] = false

	p := local.New()
	ctx := context.Background()
	if err := p.Initialize(ctx, settings); err != nil {
		return err
	}
	defer p.Close()

	fmt.Printf("Scanning music folders for profile '%s'...\n", profile.Name)
	start := time.Now()
	n, err := p.Scan(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Scan complete in %s: %d tracks\n", time.Since(start).Round(time.Millisecond), n)
	logger.Info("scan complete", slog.Int("tracks", n), slog.Duration("duration", time.Since(start)))
	return nil
}
