package database

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLSchema is the reference DDL for the go-sql-driver store.
var MySQLSchema = []string{
	"CREATE TABLE IF NOT EXISTS journeys (" +
		"id VARCHAR(64) PRIMARY KEY," +
		"user_id VARCHAR(64) NOT NULL," +
		"origin_crs CHAR(3) NOT NULL," +
		"destination_crs CHAR(3) NOT NULL," +
		"departure_time DATETIME(6) NOT NULL," +
		"arrival_time DATETIME(6) NOT NULL," +
		"journey_type VARCHAR(16) NOT NULL," +
		"status VARCHAR(16) NOT NULL DEFAULT 'draft'," +
		"confirmed_at DATETIME(6) NULL," +
		"created_at DATETIME(6) NOT NULL," +
		"updated_at DATETIME(6) NOT NULL" +
		")",
	"CREATE TABLE IF NOT EXISTS journey_segments (" +
		"id VARCHAR(64) PRIMARY KEY," +
		"journey_id VARCHAR(64) NOT NULL," +
		"segment_order INT NOT NULL," +
		"rid VARCHAR(128) NOT NULL," +
		"toc_code CHAR(2) NOT NULL," +
		"origin_crs CHAR(3) NOT NULL," +
		"destination_crs CHAR(3) NOT NULL," +
		"scheduled_departure DATETIME(6) NOT NULL," +
		"scheduled_arrival DATETIME(6) NOT NULL," +
		"created_at DATETIME(6) NOT NULL," +
		"UNIQUE KEY uq_journey_segment_order (journey_id, segment_order)," +
		"CONSTRAINT fk_segment_journey FOREIGN KEY (journey_id) REFERENCES journeys (id) ON DELETE CASCADE" +
		")",
	"CREATE TABLE IF NOT EXISTS outbox (" +
		"id CHAR(26) PRIMARY KEY," +
		"aggregate_type VARCHAR(64) NOT NULL," +
		"aggregate_id VARCHAR(64) NOT NULL," +
		"event_type VARCHAR(128) NOT NULL," +
		"payload JSON NOT NULL," +
		"correlation_id VARCHAR(128) NULL," +
		"idempotency_key CHAR(64) NULL," +
		"created_at DATETIME(6) NOT NULL," +
		"processed_at DATETIME(6) NULL," +
		"UNIQUE KEY uq_outbox_idempotency_key (idempotency_key)" +
		")",
}

// OpenMySQL connects to MYSQL_DSN and skips the test when it is unset. The
// DSN needs parseTime=true&loc=UTC.
func OpenMySQL(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ensureSchema(t, db, "mysql", MySQLSchema)
	return db
}
