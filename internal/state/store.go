// Package state provides the chat-state persistence backends: per-chat JSON
// files, a single SQLite database, or nothing at all.
package state

import (
	"fmt"
	"log/slog"

	"telebridge/internal/config"
	"telebridge/internal/domain"
)

// New builds the backend selected by the configuration.
func New(cfg config.StateConfig, logger *slog.Logger) (domain.StateStore, error) {
	switch cfg.Backend {
	case "json":
		return NewJSONStore(cfg.Dir)
	case "sqlite":
		return NewSQLiteStore(cfg.DBPath, logger)
	case "none":
		return NullStore{}, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

// NullStore is the no-op backend used when persistence is disabled.
type NullStore struct{}

func (NullStore) Load(int64) ([]byte, error)  { return nil, nil }
func (NullStore) Save(int64, []byte) error    { return nil }
func (NullStore) Delete(int64) error          { return nil }
func (NullStore) ListChats() ([]int64, error) { return nil, nil }
func (NullStore) Close() error                { return nil }
