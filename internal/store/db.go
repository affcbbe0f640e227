// Package store persists accounts, deployments and processed donation events
// through sqlx. Postgres (pgx) is the production backend; SQLite (modernc) is
// used for local runs and tests.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"sitekeep/internal/models"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Store is the sqlx-backed persistence layer. Every call is bounded by the
// configured timeout.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to the database and verifies connectivity with a ping.
func Open(ctx context.Context, driver, dsn string, timeout time.Duration) (*Store, error) {
	if driver == DriverSQLite && !strings.Contains(dsn, "_time_format") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if driver == DriverSQLite {
		// Single writer avoids "database is locked" under concurrent donations.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return New(db, timeout), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// DB exposes the underlying connection for migrations.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// q rebinds a '?' query to the driver's placeholder style.
func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

// lockClause returns the row-lock suffix for SELECTs inside a transaction.
// SQLite has no row locks; its single writer serialises transactions instead.
func (s *Store) lockClause() string {
	if s.db.DriverName() == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
}
