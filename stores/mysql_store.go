package stores

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

type MySQLStore struct {
	sqlStore
}

type MySQLOption func(*MySQLStore)

func WithMySQLTables(tables Tables) MySQLOption {
	return func(s *MySQLStore) {
		s.tables = s.tables.merge(tables)
	}
}

func WithMySQLNow(now func() time.Time) MySQLOption {
	return func(s *MySQLStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMySQLStore builds a store for go-sql-driver/mysql. The DSN must set
// parseTime=true so DATETIME columns scan into time.Time.
func NewMySQLStore(db *sql.DB, opts ...MySQLOption) *MySQLStore {
	store := &MySQLStore{sqlStore{
		db: db,
		dialect: dialect{
			quote:    "`",
			upsert:   onDuplicateKeyUpdate,
			ignore:   onDuplicateKeyKeep,
			conflict: mysqlConflict,
		},
		tables: DefaultTables,
		now:    time.Now,
	}}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// MySQL has no conflict target; any unique key triggers the update.
func onDuplicateKeyUpdate(_ []string, cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// A no-op assignment reports zero affected rows, which AddOutbox reads as a skip.
func onDuplicateKeyKeep(_ []string) string {
	return "ON DUPLICATE KEY UPDATE id = id"
}

// The key name only appears in the message: "Duplicate entry 'x' for key 'journey_segments.PRIMARY'".
func mysqlConflict(err error) conflictKind {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != mysqlDuplicateEntry {
		return conflictNone
	}
	if strings.Contains(myErr.Message, "PRIMARY'") {
		return conflictPrimary
	}
	return conflictUnique
}
