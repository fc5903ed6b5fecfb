// Package database opens the SQL pool used by the stores and waits for the
// server to become reachable.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/mickamy/journeyoutbox"
)

// Options tune the pool and the startup ping loop.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// PingAttempts bounds how often Open pings before giving up. Defaults to 1.
	PingAttempts int
	// Backoff computes the wait between failed pings.
	Backoff journeyoutbox.Backoff
	// OnRetry is called after every failed ping that will be retried.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DriverName maps a configured driver to its database/sql registration name.
func DriverName(driver string) (string, error) {
	switch driver {
	case "postgres":
		return "pgx", nil
	case "mysql":
		return "mysql", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("database: unsupported driver %q", driver)
	}
}

// Open creates a pool for driver/dsn and pings it until it answers or the
// attempts are exhausted.
func Open(ctx context.Context, driver, dsn string, opts Options) (*sql.DB, error) {
	name, err := DriverName(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driver, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := ping(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ping(ctx context.Context, db *sql.DB, opts Options) error {
	attempts := opts.PingAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = journeyoutbox.Exponential(200*time.Millisecond, 2.0, 5*time.Second)
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		wait := backoff(attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, wait, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("database: ping after %d attempts: %w", attempts, err)
}
