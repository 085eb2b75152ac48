package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds Cadenza runtime configuration loaded from TOML.
type Config struct {
	ConfigVersion int           `toml:"config_version"`
	ActiveProfile string        `toml:"active_profile"`
	UI            UIConfig      `toml:"ui"`
	Player        PlayerConfig  `toml:"player"`
	Queue         QueueConfig   `toml:"queue"`
	Log           LogConfig     `toml:"log"`
	Keybindings   KeybindConfig `toml:"keybindings"`
	Profiles      []Profile     `toml:"profiles"`
}

// QueueConfig holds queue persistence settings.
type QueueConfig struct {
	Persist bool   `toml:"persist"`
	DBPath  string `toml:"db_path"`
}

type UIConfig struct {
	NoEmoji              bool   `toml:"no_emoji"`
	Theme                string `toml:"theme"`
	DesktopNotifications bool   `toml:"desktop_notifications"`
}

// Skip policies for tracks that have no file for the active rendition.
const (
	SkipForward = "forward"
	SkipBoth    = "both"
	SkipNone    = "none"
)

// Reactions to a track that stops with an engine error.
const (
	OnErrorAdvance = "advance"
	OnErrorStop    = "stop"
)

type PlayerConfig struct {
	SampleIntervalMs    int    `toml:"sample_interval_ms"`
	ResolveTimeoutMs    int    `toml:"resolve_timeout_ms"`
	NetworkTimeout      int    `toml:"network_timeout_ms"`
	SignedURLTTLSeconds int    `toml:"signed_url_ttl_seconds"`
	URLCacheSize        int    `toml:"url_cache_size"`
	SeekStepSeconds     int    `toml:"seek_step_seconds"`
	SkipMissing         string `toml:"skip_missing"`      // forward, both, none
	OnPlaybackError     string `toml:"on_playback_error"` // advance, stop
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	Level      string `toml:"level"`
	Dir        string `toml:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// KeybindConfig allows customizing keybindings.
type KeybindConfig struct {
	PlayPause     string `toml:"play_pause"`
	NextTrack     string `toml:"next_track"`
	PrevTrack     string `toml:"prev_track"`
	SeekForward   string `toml:"seek_forward"`
	SeekBackward  string `toml:"seek_backward"`
	SwitchVersion string `toml:"switch_version"`
	Stop          string `toml:"stop"`
	FullPlayer    string `toml:"full_player"`
	Favorite      string `toml:"favorite"`
	Search        string `toml:"search"`
	Quit          string `toml:"quit"`
}

type Profile struct {
	ID       string         `toml:"id"`
	Name     string         `toml:"name"`
	Provider string         `toml:"provider"`
	Enabled  bool           `toml:"enabled"`
	Settings map[string]any `toml:"settings"`
}

// Load reads configuration from disk. If path is empty, a default OS-specific
// location is used. A .env file beside the config and one in the working
// directory are loaded into the environment first; existing variables win.
func Load(path string) (*Config, string, error) {
	cfgPath := path
	if cfgPath == "" {
		var err error
		cfgPath, err = defaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	loadEnvFiles(filepath.Join(filepath.Dir(cfgPath), ".env"), ".env")

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, err
	}

	return &cfg, cfgPath, nil
}

func loadEnvFiles(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		// Missing or malformed .env files are not fatal; settings may come from the real environment.
		_ = godotenv.Load(p)
	}
}

// Dir returns the cadenza config directory.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(dir, "Cadenza"), nil
	}
	return filepath.Join(dir, "cadenza"), nil
}

func defaultPath() (string, error) {
	base, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(base, "config.toml"), nil
}

func applyDefaults(cfg *Config) {
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = "rainbow"
	}
	if cfg.Player.SampleIntervalMs == 0 {
		cfg.Player.SampleIntervalMs = 250
	}
	if cfg.Player.ResolveTimeoutMs == 0 {
		cfg.Player.ResolveTimeoutMs = 10000
	}
	if cfg.Player.NetworkTimeout == 0 {
		cfg.Player.NetworkTimeout = 8000
	}
	if cfg.Player.SignedURLTTLSeconds == 0 {
		cfg.Player.SignedURLTTLSeconds = 300
	}
	if cfg.Player.URLCacheSize == 0 {
		cfg.Player.URLCacheSize = 64
	}
	if cfg.Player.SeekStepSeconds == 0 {
		cfg.Player.SeekStepSeconds = 5
	}
	if cfg.Player.SkipMissing == "" {
		cfg.Player.SkipMissing = SkipForward
	}
	if cfg.Player.OnPlaybackError == "" {
		cfg.Player.OnPlaybackError = OnErrorAdvance
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 14
	}
	if cfg.Keybindings.PlayPause == "" {
		cfg.Keybindings.PlayPause = "space"
	}
	if cfg.Keybindings.NextTrack == "" {
		cfg.Keybindings.NextTrack = "n"
	}
	if cfg.Keybindings.PrevTrack == "" {
		cfg.Keybindings.PrevTrack = "p"
	}
	if cfg.Keybindings.SeekForward == "" {
		cfg.Keybindings.SeekForward = "l"
	}
	if cfg.Keybindings.SeekBackward == "" {
		cfg.Keybindings.SeekBackward = "h"
	}
	if cfg.Keybindings.SwitchVersion == "" {
		cfg.Keybindings.SwitchVersion = "v"
	}
	if cfg.Keybindings.Stop == "" {
		cfg.Keybindings.Stop = "x"
	}
	if cfg.Keybindings.FullPlayer == "" {
		cfg.Keybindings.FullPlayer = "f"
	}
	if cfg.Keybindings.Favorite == "" {
		cfg.Keybindings.Favorite = "*"
	}
	if cfg.Keybindings.Search == "" {
		cfg.Keybindings.Search = "/"
	}
	if cfg.Keybindings.Quit == "" {
		cfg.Keybindings.Quit = "q,ctrl+c"
	}
}

// Validate performs semantic validation of config.
func Validate(cfg Config) error {
	if cfg.ActiveProfile == "" {
		return errors.New("active_profile is required")
	}
	profile, ok := cfg.ProfileByID(cfg.ActiveProfile)
	if !ok {
		return fmt.Errorf("active_profile %q not found", cfg.ActiveProfile)
	}
	if !profile.Enabled {
		return fmt.Errorf("active_profile %q is disabled", cfg.ActiveProfile)
	}
	if cfg.Player.SampleIntervalMs < 10 {
		return fmt.Errorf("player.sample_interval_ms must be at least 10")
	}
	switch cfg.Player.SkipMissing {
	case SkipForward, SkipBoth, SkipNone:
	default:
		return fmt.Errorf("player.skip_missing must be forward, both or none, got %q", cfg.Player.SkipMissing)
	}
	switch cfg.Player.OnPlaybackError {
	case OnErrorAdvance, OnErrorStop:
	default:
		return fmt.Errorf("player.on_playback_error must be advance or stop, got %q", cfg.Player.OnPlaybackError)
	}

	switch profile.Provider {
	case "supabase":
		if err := validateSupabase(profile.Settings); err != nil {
			return err
		}
	case "local":
		if err := validateLocal(profile.Settings); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown provider: %s", profile.Provider)
	}
	return nil
}

func validateSupabase(settings map[string]any) error {
	baseURL, _ := settings["base_url"].(string)
	if baseURL == "" {
		return errors.New("supabase.base_url is required")
	}
	key, _ := settings["anon_key"].(string)
	keyEnv, _ := settings["anon_key_env"].(string)
	if key == "" && (keyEnv == "" || os.Getenv(keyEnv) == "") {
		return errors.New("supabase.anon_key or anon_key_env is required")
	}
	return nil
}

func validateLocal(settings map[string]any) error {
	roots, ok := settings["roots"].([]any)
	if !ok || len(roots) == 0 {
		return errors.New("local.roots is required")
	}
	for _, r := range roots {
		s, _ := r.(string)
		if s == "" {
			return errors.New("local.roots contains empty path")
		}
		if _, err := os.Stat(s); err != nil {
			return fmt.Errorf("local root %s: %w", s, err)
		}
	}
	return nil
}

// ProfileByID returns profile and true when found.
func (c Config) ProfileByID(id string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// DeadlineContext returns a context with default timeout based on player network timeout.
func (c Config) DeadlineContext() (context.Context, context.CancelFunc) {
	d := time.Duration(c.Player.NetworkTimeout) * time.Millisecond
	if d == 0 {
		d = 8 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}

func (p PlayerConfig) SampleInterval() time.Duration {
	return time.Duration(p.SampleIntervalMs) * time.Millisecond
}

func (p PlayerConfig) ResolveTimeout() time.Duration {
	return time.Duration(p.ResolveTimeoutMs) * time.Millisecond
}

func (p PlayerConfig) SignedURLTTL() time.Duration {
	return time.Duration(p.SignedURLTTLSeconds) * time.Second
}
