package stores

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	sqlStore
}

type PostgresOption func(*PostgresStore)

func WithPostgresTables(tables Tables) PostgresOption {
	return func(s *PostgresStore) {
		s.tables = s.tables.merge(tables)
	}
}

func WithPostgresNow(now func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPostgresStore builds a store for databases opened with the pgx stdlib driver.
func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	store := &PostgresStore{sqlStore{
		db: db,
		dialect: dialect{
			quote:    `"`,
			numbered: true,
			upsert:   onConflictUpsert,
			ignore:   onConflictIgnore,
			conflict: postgresConflict,
		},
		tables: DefaultTables,
		now:    time.Now,
	}}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Postgres names primary key constraints <table>_pkey unless told otherwise.
func postgresConflict(err error) conflictKind {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return conflictNone
	}
	if strings.HasSuffix(pgErr.ConstraintName, "_pkey") {
		return conflictPrimary
	}
	return conflictUnique
}
