package testutil

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/npezzotti/guild-relay/internal/database"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// NewTestStore opens a migrated sqlite store in a temporary directory.
func NewTestStore(t *testing.T) *database.SQLStore {
	t.Helper()
	store, err := database.Open(context.Background(), database.SQLite, filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
