package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"loteria/internal/domain"
)

// GameConfig holds server-side tunables for room sessions.
type GameConfig struct {
	// AutoIntervalSeconds is how long the automatic caller waits between cards.
	AutoIntervalSeconds int `json:"auto_interval_seconds"`
	// MaxPlayers caps the roster of a single room.
	MaxPlayers int `json:"max_players"`
	// BoardSize is the number of cards dealt to each player.
	BoardSize int `json:"board_size"`
	// WinPurseBeans is the bean amount credited to a verified winner.
	WinPurseBeans int64 `json:"win_purse_beans"`
	// BotFillCount is how many bots join a solo-human lobby when auto-fill kicks in.
	BotFillCount int `json:"bot_fill_count"`
	// Cards optionally replaces the built-in card catalog.
	Cards []string `json:"cards"`
}

const (
	defaultAutoIntervalSeconds = 3
	defaultMaxPlayers          = 6
	defaultBoardSize           = 16
	defaultWinPurseBeans       = 50
	defaultBotFillCount        = 3
)

var (
	cfg      *GameConfig
	loadOnce sync.Once
	loadErr  error
)

// LoadGameConfig loads the game configuration from the given path.
func LoadGameConfig(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read game config: %w", err)
			return
		}

		var c GameConfig
		if err := json.Unmarshal(data, &c); err != nil {
			loadErr = fmt.Errorf("failed to unmarshal game config: %w", err)
			return
		}
		cfg = &c
	})
	return loadErr
}

// AutoIntervalSeconds returns the configured call interval, or the default.
func AutoIntervalSeconds() int {
	if cfg == nil || cfg.AutoIntervalSeconds <= 0 {
		return defaultAutoIntervalSeconds
	}
	return cfg.AutoIntervalSeconds
}

// MaxPlayers returns the configured roster cap, or the default.
func MaxPlayers() int {
	if cfg == nil || cfg.MaxPlayers <= 0 {
		return defaultMaxPlayers
	}
	return cfg.MaxPlayers
}

// BoardSize returns the configured board size, or the default.
func BoardSize() int {
	if cfg == nil || cfg.BoardSize <= 0 {
		return defaultBoardSize
	}
	return cfg.BoardSize
}

// WinPurseBeans returns the bean purse for a verified win, or the default.
func WinPurseBeans() int64 {
	if cfg == nil || cfg.WinPurseBeans <= 0 {
		return defaultWinPurseBeans
	}
	return cfg.WinPurseBeans
}

// BotFillCount returns how many bots auto-fill adds, or the default.
func BotFillCount() int {
	if cfg == nil || cfg.BotFillCount <= 0 {
		return defaultBotFillCount
	}
	return cfg.BotFillCount
}

// Cards returns the card catalog to deal from.
func Cards() []string {
	if cfg == nil || len(cfg.Cards) == 0 {
		return domain.DefaultCatalog
	}
	return cfg.Cards
}
