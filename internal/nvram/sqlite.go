package nvram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/database"
)

// sqliteTimeout bounds each statement against the node database.
const sqliteTimeout = 5 * time.Second

// SQLite is a Store kept as a single BLOB row in the node database.
// The nvram table is created by the embedded migrations.
type SQLite struct {
	*image
	db *database.DB
}

// OpenSQLite loads the image row from db. A missing row is an empty image.
func OpenSQLite(ctx context.Context, db *database.DB, capacity int64) (*SQLite, error) {
	if capacity <= 0 {
		return nil, ErrBadCapacity
	}

	ctx, cancel := context.WithTimeout(ctx, sqliteTimeout)
	defer cancel()

	var data []byte
	err := db.QueryRowContext(ctx, "SELECT image FROM nvram WHERE id = 1").Scan(&data)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loading nvram image: %w", err)
	}
	if int64(len(data)) > capacity {
		data = data[:capacity]
	}
	return &SQLite{image: newImage(capacity, data), db: db}, nil
}

// Sync upserts the image row when the image changed.
func (s *SQLite) Sync() error {
	return s.commit(func(snapshot []byte) error {
		ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
		defer cancel()

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO nvram (id, image, updated_at) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET image = excluded.image, updated_at = excluded.updated_at
		`, snapshot, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("saving nvram image: %w", err)
		}
		return nil
	})
}

// Close marks the store closed. The database is owned by the caller.
func (s *SQLite) Close() error {
	s.close()
	return nil
}
