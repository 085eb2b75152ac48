package app

import (
	"strings"

	"github.com/cadenza/cadenza/internal/config"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"
)

// binding is the set of key strings, as reported by tea.KeyMsg.String, that
// trigger one action.
type binding []string

func parseBinding(s string) binding {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		p = strings.TrimSpace(p)
		if p == "space" {
			return " "
		}
		return p
	})
	return lo.Compact(parts)
}

func (b binding) matches(msg tea.KeyMsg) bool {
	return lo.Contains(b, msg.String())
}

// help renders the binding for the help screen.
func (b binding) help() string {
	return strings.Join(lo.Map(b, func(k string, _ int) string {
		if k == " " {
			return "space"
		}
		return k
	}), "/")
}

type keyMap struct {
	PlayPause     binding
	NextTrack     binding
	PrevTrack     binding
	SeekForward   binding
	SeekBackward  binding
	SwitchVersion binding
	Stop          binding
	FullPlayer    binding
	Favorite      binding
	Search        binding
	Quit          binding
}

func newKeyMap(cfg config.KeybindConfig) keyMap {
	return keyMap{
		PlayPause:     parseBinding(cfg.PlayPause),
		NextTrack:     parseBinding(cfg.NextTrack),
		PrevTrack:     parseBinding(cfg.PrevTrack),
		SeekForward:   parseBinding(cfg.SeekForward),
		SeekBackward:  parseBinding(cfg.SeekBackward),
		SwitchVersion: parseBinding(cfg.SwitchVersion),
		Stop:          parseBinding(cfg.Stop),
		FullPlayer:    parseBinding(cfg.FullPlayer),
		Favorite:      parseBinding(cfg.Favorite),
		Search:        parseBinding(cfg.Search),
		Quit:          parseBinding(cfg.Quit),
	}
}
