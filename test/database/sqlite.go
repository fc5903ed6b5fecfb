package database

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSchema is the reference DDL used by the in-memory test databases.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS journeys (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        origin_crs TEXT NOT NULL,
        destination_crs TEXT NOT NULL,
        departure_time TIMESTAMP NOT NULL,
        arrival_time TIMESTAMP NOT NULL,
        journey_type TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'draft',
        confirmed_at TIMESTAMP,
        created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`,
	`CREATE TABLE IF NOT EXISTS journey_segments (
        id TEXT PRIMARY KEY,
        journey_id TEXT NOT NULL REFERENCES journeys (id) ON DELETE CASCADE,
        segment_order INTEGER NOT NULL,
        rid TEXT NOT NULL,
        toc_code TEXT NOT NULL,
        origin_crs TEXT NOT NULL,
        destination_crs TEXT NOT NULL,
        scheduled_departure TIMESTAMP NOT NULL,
        scheduled_arrival TIMESTAMP NOT NULL,
        created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (journey_id, segment_order)
    )`,
	`CREATE TABLE IF NOT EXISTS outbox (
        id TEXT PRIMARY KEY,
        aggregate_type TEXT NOT NULL,
        aggregate_id TEXT NOT NULL,
        event_type TEXT NOT NULL,
        payload BLOB NOT NULL,
        correlation_id TEXT,
        idempotency_key TEXT UNIQUE,
        created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        processed_at TIMESTAMP
    )`,
}

var sqliteSeq atomic.Int64

// OpenSQLite returns a private in-memory SQLite DB with the journey schema.
// The pool is capped at one connection so a transaction never waits on a
// shared-cache table lock held by the same test.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf(
		"file:journeyoutbox_%d_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)",
		time.Now().UnixNano(), sqliteSeq.Add(1),
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	ensureSchema(t, db, "sqlite", SQLiteSchema)
	return db
}
