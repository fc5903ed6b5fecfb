package database

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresSchema is the reference DDL for the pgx-backed store.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS journeys (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        origin_crs CHAR(3) NOT NULL,
        destination_crs CHAR(3) NOT NULL,
        departure_time TIMESTAMPTZ NOT NULL,
        arrival_time TIMESTAMPTZ NOT NULL,
        journey_type TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'draft',
        confirmed_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS journey_segments (
        id TEXT PRIMARY KEY,
        journey_id TEXT NOT NULL REFERENCES journeys (id) ON DELETE CASCADE,
        segment_order INTEGER NOT NULL,
        rid TEXT NOT NULL,
        toc_code CHAR(2) NOT NULL,
        origin_crs CHAR(3) NOT NULL,
        destination_crs CHAR(3) NOT NULL,
        scheduled_departure TIMESTAMPTZ NOT NULL,
        scheduled_arrival TIMESTAMPTZ NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (journey_id, segment_order)
    )`,
	`CREATE TABLE IF NOT EXISTS outbox (
        id TEXT PRIMARY KEY,
        aggregate_type TEXT NOT NULL,
        aggregate_id TEXT NOT NULL,
        event_type TEXT NOT NULL,
        payload JSONB NOT NULL,
        correlation_id TEXT,
        idempotency_key TEXT UNIQUE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        processed_at TIMESTAMPTZ
    )`,
}

// OpenPostgres connects to POSTGRES_DSN and skips the test when it is unset.
func OpenPostgres(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ensureSchema(t, db, "postgres", PostgresSchema)
	return db
}
