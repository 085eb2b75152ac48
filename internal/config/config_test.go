package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	root := t.TempDir()
	localSettings := map[string]any{
		"roots": []any{root},
	}
	player := PlayerConfig{
		SampleIntervalMs: 250,
		SkipMissing:      SkipForward,
		OnPlaybackError:  OnErrorAdvance,
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid local config",
			cfg: Config{
				ActiveProfile: "home",
				Player:        player,
				Profiles: []Profile{
					{ID: "home", Provider: "local", Enabled: true, Settings: localSettings},
				},
			},
		},
		{
			name: "valid supabase config",
			cfg: Config{
				ActiveProfile: "cloud",
				Player:        player,
				Profiles: []Profile{
					{ID: "cloud", Provider: "supabase", Enabled: true, Settings: map[string]any{
						"base_url": "https://example.supabase.co",
						"anon_key": "anon",
					}},
				},
			},
		},
		{
			name: "supabase without key",
			cfg: Config{
				ActiveProfile: "cloud",
				Player:        player,
				Profiles: []Profile{
					{ID: "cloud", Provider: "supabase", Enabled: true, Settings: map[string]any{
						"base_url": "https://example.supabase.co",
					}},
				},
			},
			wantErr: true,
		},
		{
			name: "missing active profile",
			cfg: Config{
				ActiveProfile: "missing",
				Player:        player,
			},
			wantErr: true,
		},
		{
			name: "disabled profile",
			cfg: Config{
				ActiveProfile: "home",
				Player:        player,
				Profiles:      []Profile{{ID: "home", Enabled: false}},
			},
			wantErr: true,
		},
		{
			name: "bad skip policy",
			cfg: Config{
				ActiveProfile: "home",
				Player: PlayerConfig{
					SampleIntervalMs: 250,
					SkipMissing:      "sideways",
					OnPlaybackError:  OnErrorAdvance,
				},
				Profiles: []Profile{
					{ID: "home", Provider: "local", Enabled: true, Settings: localSettings},
				},
			},
			wantErr: true,
		},
		{
			name: "unknown provider",
			cfg: Config{
				ActiveProfile: "home",
				Player:        player,
				Profiles:      []Profile{{ID: "home", Provider: "ftp", Enabled: true}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	content := `
active_profile = "cloud"

[[profiles]]
id = "cloud"
name = "Cloud"
provider = "supabase"
enabled = true

[profiles.settings]
base_url = "https://example.supabase.co"
anon_key_env = "CADENZA_TEST_ANON_KEY"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CADENZA_TEST_ANON_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CADENZA_TEST_ANON_KEY") })

	cfg, resolved, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != cfgPath {
		t.Fatalf("resolved path %q", resolved)
	}
	if os.Getenv("CADENZA_TEST_ANON_KEY") != "from-dotenv" {
		t.Fatalf("expected .env to populate environment")
	}
	if cfg.Player.SampleInterval() != 250*time.Millisecond {
		t.Errorf("sample interval default: %v", cfg.Player.SampleInterval())
	}
	if cfg.Player.SignedURLTTL() != 5*time.Minute {
		t.Errorf("signed url ttl default: %v", cfg.Player.SignedURLTTL())
	}
	if cfg.Player.SkipMissing != SkipForward || cfg.Player.OnPlaybackError != OnErrorAdvance {
		t.Errorf("policy defaults: %q %q", cfg.Player.SkipMissing, cfg.Player.OnPlaybackError)
	}
	if cfg.Queue.Persist {
		t.Errorf("queue persistence should be opt-in")
	}
	if cfg.Keybindings.SwitchVersion != "v" {
		t.Errorf("switch version key default: %q", cfg.Keybindings.SwitchVersion)
	}
}
