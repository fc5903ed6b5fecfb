package stores

import (
	"database/sql"
	"errors"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLiteStore struct {
	sqlStore
}

type SQLiteOption func(*SQLiteStore)

func WithSQLiteTables(tables Tables) SQLiteOption {
	return func(s *SQLiteStore) {
		s.tables = s.tables.merge(tables)
	}
}

func WithSQLiteNow(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSQLiteStore(db *sql.DB, opts ...SQLiteOption) *SQLiteStore {
	store := &SQLiteStore{sqlStore{
		db: db,
		dialect: dialect{
			quote:    `"`,
			upsert:   onConflictUpsert,
			ignore:   onConflictIgnore,
			conflict: sqliteConflict,
		},
		tables: DefaultTables,
		now:    time.Now,
	}}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func sqliteConflict(err error) conflictKind {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return conflictNone
	}
	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return conflictPrimary
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return conflictUnique
	}
	return conflictNone
}
