package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cadenza/cadenza/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup creates a slog.Logger that writes to a rotating log file in the user
// state directory. The caller is responsible for closing the returned writer.
func Setup(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	dir := cfg.Dir
	if dir == "" {
		stateDir, err := StateDir()
		if err != nil {
			return nil, nil, fmt.Errorf("state dir: %w", err)
		}
		dir = stateDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}
	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "cadenza.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(handler), w, nil
}

// ParseLevel maps a config level name to a slog level. Unknown names log at info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StateDir returns the path to the cadenza state directory (~/.config/cadenza/state)
func StateDir() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state"), nil
}
