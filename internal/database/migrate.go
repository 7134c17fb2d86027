package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// Migrate applies every pending migration for the store's dialect. Postgres
// migrations run on a connection borrowed from the pool and returned when
// they finish.
func Migrate(ctx context.Context, store *SQLStore) error {
	var (
		driver migratedb.Driver
		err    error
	)
	switch store.dialect {
	case Postgres:
		conn, cerr := store.conn.Conn(ctx)
		if cerr != nil {
			return fmt.Errorf("acquire migration conn: %w", cerr)
		}
		driver, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
		if err != nil {
			conn.Close()
		}
	case SQLite:
		driver, err = sqlite.WithInstance(store.conn, &sqlite.Config{})
	default:
		return fmt.Errorf("no migrations for dialect %q", store.dialect)
	}
	if err != nil {
		return fmt.Errorf("create %s driver: %w", store.dialect, err)
	}
	// the sqlite driver closes the whole pool on Close, the postgres one only its conn
	if store.dialect == Postgres {
		defer driver.Close()
	}

	src, err := iofs.New(migrations, "migrations/"+string(store.dialect))
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer src.Close()

	m, err := migrate.NewWithInstance("iofs", src, string(store.dialect), driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}

	return nil
}
