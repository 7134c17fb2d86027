package jobs

import (
	"context"
	"log"
	"time"

	"github.com/npezzotti/guild-relay/internal/database"
)

const DefaultStatusInterval = 60 * time.Second

// SessionCounter reports the number of connected sessions.
type SessionCounter interface {
	Len() int
}

// StatusReporter periodically logs store row counts and session count.
type StatusReporter struct {
	store    database.Store
	sessions SessionCounter
	log      *log.Logger
}

func NewStatusReporter(store database.Store, sessions SessionCounter, logger *log.Logger) *StatusReporter {
	return &StatusReporter{
		store:    store,
		sessions: sessions,
		log:      logger,
	}
}

func (r *StatusReporter) Report(ctx context.Context) error {
	counts, err := database.CountRows(ctx, r.store)
	if err != nil {
		return err
	}

	r.log.Printf("status: users=%d guilds=%d channels=%d messages=%d sessions=%d",
		counts.Users, counts.Guilds, counts.Channels, counts.Messages, r.sessions.Len())
	return nil
}
