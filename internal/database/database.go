package database

import (
	"context"
	"database/sql"
	"fmt"
)

type SQLStore struct {
	conn    *sql.DB
	dialect Dialect
}

// Open connects to the store for the given dialect, verifies the connection
// and applies pending schema migrations.
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	var (
		store *SQLStore
		err   error
	)
	switch dialect {
	case Postgres:
		store, err = NewPgStore(ctx, dsn)
	case SQLite:
		store, err = NewSQLiteStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(ctx, store); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (db *SQLStore) Dialect() Dialect {
	return db.dialect
}

func (db *SQLStore) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *SQLStore) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.dialect.Rebind(query), args...)
}

func (db *SQLStore) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, db.dialect.Rebind(query), args...)
}

func (db *SQLStore) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, db.dialect.Rebind(query), args...)
}

// WithTransaction runs fn inside a single transaction. The transaction is
// rolled back if fn returns an error or panics.
func (db *SQLStore) WithTransaction(ctx context.Context, fn func(q Querier) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(&txQuerier{tx: tx, dialect: db.dialect}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (db *SQLStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

type txQuerier struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *txQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *txQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *txQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)
}
