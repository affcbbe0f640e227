package store

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending migrations for the store's driver.
// Already-applied migrations are skipped, so it is safe on every startup.
func (s *Store) RunMigrations() error {
	var (
		dir      string
		dbDriver database.Driver
		err      error
	)

	switch s.db.DriverName() {
	case DriverPostgres:
		dir = "migrations/postgres"
		dbDriver, err = migratepgx.WithInstance(s.db.DB, &migratepgx.Config{})
	case DriverSQLite:
		dir = "migrations/sqlite"
		dbDriver, err = migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
	default:
		return fmt.Errorf("run migrations: unsupported driver %q", s.db.DriverName())
	}
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, s.db.DriverName(), dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
