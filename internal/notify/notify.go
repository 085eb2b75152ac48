// Package notify shows user-visible notices outside the terminal.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
)

// Notifier delivers a short notice to the user.
type Notifier interface {
	Notify(title, message string) error
}

// Nop discards every notice.
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }

// Desktop sends notices through the OS notification service. Identical
// notices inside the cooldown window are dropped.
type Desktop struct {
	Cooldown time.Duration
	Logger   *slog.Logger

	send func(title, message string, icon any) error

	mu   sync.Mutex
	last map[string]time.Time
}

func NewDesktop(appName string, logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	if appName != "" {
		beeep.AppName = appName
	}
	return &Desktop{
		Cooldown: 5 * time.Second,
		Logger:   logger,
		send:     beeep.Notify,
		last:     map[string]time.Time{},
	}
}

func (d *Desktop) Notify(title, message string) error {
	key := title + "\x00" + message
	now := time.Now()
	d.mu.Lock()
	if t, ok := d.last[key]; ok && now.Sub(t) < d.Cooldown {
		d.mu.Unlock()
		return nil
	}
	d.last[key] = now
	d.mu.Unlock()

	if err := d.send(title, message, ""); err != nil {
		d.Logger.Warn("desktop notification failed", slog.Any("err", err))
		return err
	}
	return nil
}
