package database

import (
	"context"
	"database/sql"
)

// Querier is the subset of database/sql shared by a store and an open transaction.
// Queries use ? placeholders and are rebound for the active dialect.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store interface {
	Querier
	WithTransaction(ctx context.Context, fn func(q Querier) error) error
	Ping(ctx context.Context) error
	Dialect() Dialect
	Close() error
}
