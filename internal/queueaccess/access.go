// Package queueaccess opens the job store selected by configuration.
package queueaccess

import (
	"context"
	"fmt"

	"graphmem/internal/config"
	"graphmem/internal/queue"
	"graphmem/internal/queue/postgres"
)

// Session represents a job store handle and its cleanup function.
type Session struct {
	Store   queue.JobStore
	Backend string
	// Location is the database file or a redacted connection string.
	Location string
	close    func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// SQLite returns the SQLite store when that backend is active.
func (s Session) SQLite() (*queue.Store, bool) {
	store, ok := s.Store.(*queue.Store)
	return store, ok
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg *config.Config) (Session, error) {
	if cfg == nil {
		return Session{}, fmt.Errorf("open job store: configuration required")
	}
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite, "":
		store, err := queue.Open(cfg)
		if err != nil {
			return Session{}, fmt.Errorf("open job store: %w", err)
		}
		return Session{Store: store, Backend: config.StoreDriverSQLite, Location: store.Path(), close: store.Close}, nil
	case config.StoreDriverPostgres:
		store, err := postgres.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return Session{}, fmt.Errorf("open job store: %w", err)
		}
		return Session{Store: store, Backend: config.StoreDriverPostgres, Location: redact(cfg.Store.DSN), close: store.Close}, nil
	default:
		return Session{}, fmt.Errorf("open job store: unsupported driver %q", cfg.Store.Driver)
	}
}
