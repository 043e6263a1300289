package store

import (
	"fmt"
	"time"
)

// Config selects and configures a Backend.
type Config struct {
	Mode      Mode
	RemoteURL string
	Token     string
	Timeout   time.Duration
	LocalPath string
}

// New constructs a Backend from cfg. Mode defaults to in-memory so the
// service starts with no configuration at all.
func New(cfg Config) (Backend, error) {
	switch cfg.Mode {
	case ModeRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("store: remote mode requires a board URL")
		}
		return NewHTTPBackend(cfg.RemoteURL, cfg.Token, cfg.Timeout), nil
	case ModeLocal:
		path := cfg.LocalPath
		if path == "" {
			path = "agentboard.db"
		}
		return NewSQLiteBackend(path)
	case ModeMemory, "":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("store: unknown mode %q", cfg.Mode)
	}
}
