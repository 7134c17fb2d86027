package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// NewSQLiteStore opens a file backed store, used for local runs and tests.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "file:")
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	db, err := sql.Open("sqlite", "file:"+filepath.Clean(path)+"?"+sqlitePragmas)
	if err != nil {
		return nil, err
	}
	// one writer at a time; transactions never touch a second connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{conn: db, dialect: SQLite}, nil
}
