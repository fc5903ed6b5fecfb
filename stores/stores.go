// Package stores implements journeyoutbox.Store for Postgres, MySQL and
// SQLite over database/sql.
package stores

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mickamy/journeyoutbox"
)

// Reader reads back committed rows outside any transaction.
type Reader interface {
	OutboxEvents(ctx context.Context, aggregateID string) ([]journeyoutbox.OutboxEvent, error)
	Segments(ctx context.Context, journeyID string) ([]journeyoutbox.Segment, error)
}

// Store is a dialect store.
type Store interface {
	journeyoutbox.Store
	Reader
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MySQLStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// New selects the store implementation for a config driver name.
func New(driver string, db *sql.DB) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgresStore(db), nil
	case "mysql":
		return NewMySQLStore(db), nil
	case "sqlite":
		return NewSQLiteStore(db), nil
	default:
		return nil, fmt.Errorf("journeyoutbox: unsupported database driver %q", driver)
	}
}
