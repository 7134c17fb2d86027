package presence

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/stats"
	"github.com/samber/lo"
)

const (
	DefaultPollInterval = 20 * time.Second

	// StatusUnknown is reported as the old status of a user seen for the first time.
	StatusUnknown = "unknown"
)

type Member struct {
	UserID   string
	UserName string
	Status   string
}

// GuildSnapshot is the live status of every member of one guild.
type GuildSnapshot struct {
	GuildID   string
	GuildName string
	Members   []Member
}

// Feed reads the current member statuses of every visible guild.
type Feed interface {
	Snapshot(ctx context.Context) ([]GuildSnapshot, error)
}

// Relay delivers status changes to every session.
type Relay interface {
	BroadcastAll(ctx context.Context, ev events.Event) int
}

// Reconciler keeps the last known status of every user and emits
// USER_UPDATE_STATUS when a user's status moves away from it.
type Reconciler struct {
	feed  Feed
	relay Relay
	log   *log.Logger
	stats stats.StatsProvider

	mu       sync.Mutex
	statuses map[string]string
}

func NewReconciler(feed Feed, relay Relay, logger *log.Logger, st stats.StatsProvider) *Reconciler {
	st.RegisterMetric(stats.PresenceChanges)

	return &Reconciler{
		feed:     feed,
		relay:    relay,
		log:      logger,
		stats:    st,
		statuses: make(map[string]string),
	}
}

func normalize(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// Rebuild replaces the cache with the statuses in a fresh snapshot. It emits
// nothing.
func (r *Reconciler) Rebuild(ctx context.Context) error {
	snaps, err := r.feed.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("presence snapshot: %w", err)
	}

	statuses := make(map[string]string)
	for _, g := range snaps {
		for _, m := range g.Members {
			statuses[m.UserID] = normalize(m.Status)
		}
	}

	r.mu.Lock()
	r.statuses = statuses
	r.mu.Unlock()

	r.log.Printf("presence cache rebuilt: %d users across %d guilds", len(statuses), len(snaps))
	return nil
}

// Poll compares a fresh snapshot against the cache and emits one status
// update per changed user.
func (r *Reconciler) Poll(ctx context.Context) error {
	snaps, err := r.feed.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("presence snapshot: %w", err)
	}

	var changed []string
	for _, g := range snaps {
		for _, m := range g.Members {
			if r.Observe(ctx, g.GuildID, g.GuildName, m) {
				changed = append(changed, m.UserName)
			}
		}
	}

	if len(changed) > 0 {
		r.log.Printf("presence poll updated %d users: %s", len(changed), strings.Join(lo.Uniq(changed), ", "))
	}
	return nil
}

// Observe records m's current status and emits an update when it differs
// from the cached one. It reports whether an update was emitted.
func (r *Reconciler) Observe(ctx context.Context, guildID, guildName string, m Member) bool {
	status := normalize(m.Status)
	if m.UserID == "" || status == "" {
		return false
	}

	r.mu.Lock()
	old, ok := r.statuses[m.UserID]
	if ok && old == status {
		r.mu.Unlock()
		return false
	}
	r.statuses[m.UserID] = status
	r.mu.Unlock()

	if !ok {
		old = StatusUnknown
	}

	r.stats.Incr(stats.PresenceChanges)
	r.relay.BroadcastAll(ctx, &events.UserStatusUpdate{
		UserID:    m.UserID,
		UserName:  m.UserName,
		OldStatus: old,
		NewStatus: status,
		GuildID:   guildID,
		GuildName: guildName,
	})

	return true
}

// Seed caches the status of a newly joined member without emitting.
func (r *Reconciler) Seed(userID, status string) {
	if userID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[userID] = normalize(status)
}

// Status returns the cached status of userID.
func (r *Reconciler) Status(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.statuses[userID]
	return s, ok
}
