package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-node/internal/nvram"
)

// openStore opens the configured persistent store. The returned close
// function releases the store and, for SQLite, the database.
func openStore(ctx context.Context, cfg config.StoreConfig) (nvram.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendFile:
		f, err := nvram.OpenFile(cfg.Path, cfg.Capacity)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil

	case config.BackendSQLite:
		db, err := database.Open(database.Config{
			Path:        cfg.Path,
			WALMode:     cfg.WALMode,
			BusyTimeout: cfg.BusyTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		s, err := nvram.OpenSQLite(ctx, db, cfg.Capacity)
		if err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, nil, err
		}
		closer := func() error {
			if err := s.Close(); err != nil {
				db.Close() //nolint:errcheck // Already failing
				return err
			}
			return db.Close()
		}
		return s, closer, nil

	case config.BackendMemory:
		m, err := nvram.NewMemory(cfg.Capacity)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
