package jobs

import (
	"context"
	"log"
	"time"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/stats"
)

const (
	DefaultTypingSweepInterval = 5 * time.Second
	DefaultTypingTTL           = 10 * time.Second
)

// TypingSweeper expires typing indicators that have not been refreshed
// within the TTL.
type TypingSweeper struct {
	store database.Store
	log   *log.Logger
	stats stats.StatsProvider
	ttl   time.Duration
	now   func() time.Time
}

func NewTypingSweeper(store database.Store, logger *log.Logger, st stats.StatsProvider, ttl time.Duration) *TypingSweeper {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	st.RegisterMetric(stats.TypingSwept)

	return &TypingSweeper{
		store: store,
		log:   logger,
		stats: st,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Sweep deletes every indicator older than the TTL.
func (s *TypingSweeper) Sweep(ctx context.Context) error {
	n, err := database.DeleteTypingBefore(ctx, s.store, s.now().Add(-s.ttl))
	if err != nil {
		return err
	}

	if n > 0 {
		s.stats.Add(stats.TypingSwept, float64(n))
		s.log.Printf("expired %d typing indicators", n)
	}
	return nil
}
