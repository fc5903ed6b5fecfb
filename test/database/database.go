// Package database opens test databases with the reference journey schema.
package database

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func ensureSchema(t *testing.T, db *sql.DB, name string, ddl []string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping %s: %v", name, err)
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("create %s schema: %v", name, err)
		}
	}
}
