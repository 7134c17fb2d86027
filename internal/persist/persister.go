// Package persist mirrors relayed events into the relational store.
package persist

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/stats"
)

const defaultResolveTimeout = 2 * time.Second

type Persister struct {
	store          database.Store
	names          NameResolver
	log            *log.Logger
	stats          stats.StatsProvider
	resolveTimeout time.Duration
	now            func() time.Time

	mu    sync.RWMutex
	botID string
}

type Option func(*Persister)

// WithNameResolver sets the lookup used to name placeholder rows.
func WithNameResolver(r NameResolver) Option {
	return func(p *Persister) { p.names = r }
}

func WithResolveTimeout(d time.Duration) Option {
	return func(p *Persister) {
		if d > 0 {
			p.resolveTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Persister) { p.now = now }
}

func NewPersister(store database.Store, logger *log.Logger, st stats.StatsProvider, opts ...Option) *Persister {
	p := &Persister{
		store:          store,
		log:            logger,
		stats:          st,
		resolveTimeout: defaultResolveTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	st.RegisterMetric(stats.PersistFailures)
	return p
}

// SetBotID records the id of the bot the relay speaks for. Direct messages
// it authors are attributed to their recipient.
func (p *Persister) SetBotID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.botID = id
}

// fromBot reports whether a was written by the identified bot. Until a bot
// has identified, any bot author counts.
func (p *Persister) fromBot(a *events.Author) bool {
	p.mu.RLock()
	id := p.botID
	p.mu.RUnlock()

	if id == "" {
		return a.Bot
	}
	return a.ID == id
}

// Process writes ev to the store. It reports whether the event was persisted;
// failures are logged and never returned to the caller.
func (p *Persister) Process(ctx context.Context, ev events.Event) bool {
	if err := events.Validate(ev); err != nil {
		p.log.Printf("invalid %s event: %v", ev.Kind(), err)
		return false
	}

	var err error
	switch e := ev.(type) {
	case *events.UserUpdate:
		err = p.userUpdate(ctx, e)
	case *events.UserStatusUpdate:
		err = p.userStatus(ctx, e)
	case *events.Guild:
		err = p.guild(ctx, e)
	case *events.GuildMemberJoin:
		err = p.guildMemberJoin(ctx, e)
	case *events.GuildMemberLeave:
		err = p.guildMemberLeave(ctx, e)
	case *events.GuildMemberRoles:
		err = p.guildMemberRoles(ctx, e)
	case *events.Channel:
		err = p.channel(ctx, e)
	case *events.ChannelDelete:
		err = p.channelDelete(ctx, e)
	case *events.Role:
		err = p.role(ctx, e)
	case *events.RoleDelete:
		err = p.roleDelete(ctx, e)
	case *events.Message:
		err = p.message(ctx, e)
	case *events.MessageDelete:
		err = p.messageDelete(ctx, e)
	case *events.Reaction:
		err = p.reaction(ctx, e)
	case *events.TypingStart:
		err = p.typingStart(ctx, e)
	case *events.RefreshDMList:
		return true
	default:
		p.log.Printf("warning: no persistence handler for event type %s", ev.Kind())
		return false
	}

	if err != nil {
		if database.IsForeignKeyViolation(err) {
			p.log.Printf("persist %s: missing referenced row: %v", ev.Kind(), err)
		} else {
			p.log.Printf("persist %s: %v", ev.Kind(), err)
		}
		p.stats.Incr(stats.PersistFailures)
		return false
	}

	return true
}

func (p *Persister) nowMillis() int64 {
	return database.ToMillis(p.now())
}
