package database

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
)

func NewPgStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{conn: db, dialect: Postgres}, nil
}
