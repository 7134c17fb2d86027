package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/stats"
)

// ErrNotPersisted is returned by Publish when the store rejected the event.
var ErrNotPersisted = errors.New("event not persisted")

// Broadcaster persists events and fans them out to matching sessions.
type Broadcaster struct {
	registry           *Registry
	persister          Persister
	log                *log.Logger
	stats              stats.StatsProvider
	persistTimeout     time.Duration
	deliverUnpersisted bool
}

// BroadcastAll relays ev to every connected session and returns the number
// of sessions it was queued for.
func (b *Broadcaster) BroadcastAll(ctx context.Context, ev events.Event) int {
	n, _ := b.broadcast(ctx, "", "", ev)
	return n
}

func (b *Broadcaster) BroadcastToChannel(ctx context.Context, channelID string, ev events.Event) int {
	n, _ := b.broadcast(ctx, TopicChannel, channelID, ev)
	return n
}

func (b *Broadcaster) BroadcastToDm(ctx context.Context, userID string, ev events.Event) int {
	n, _ := b.broadcast(ctx, TopicDM, userID, ev)
	return n
}

func (b *Broadcaster) BroadcastToGuild(ctx context.Context, guildID string, ev events.Event) int {
	n, _ := b.broadcast(ctx, TopicGuild, guildID, ev)
	return n
}

// Publish relays ev to the sessions subscribed to topic id, or to every
// session when topic is empty. It returns ErrNotPersisted if ev was not
// stored, whether or not it was delivered.
func (b *Broadcaster) Publish(ctx context.Context, topic Topic, id string, ev events.Event) (int, error) {
	n, persisted := b.broadcast(ctx, topic, id, ev)
	if !persisted {
		return n, ErrNotPersisted
	}
	return n, nil
}

func (b *Broadcaster) broadcast(ctx context.Context, topic Topic, id string, ev events.Event) (int, bool) {
	scope := "all"
	if topic != "" {
		scope = string(topic) + ":" + id
	}

	payload, err := events.Encode(ev)
	if err != nil {
		b.log.Printf("broadcast %s to %s: %v", ev.Kind(), scope, err)
		return 0, false
	}

	pctx, cancel := context.WithTimeout(ctx, b.persistTimeout)
	persisted := b.persister.Process(pctx, ev)
	cancel()

	if !persisted && !b.deliverUnpersisted {
		b.log.Printf("broadcast %s to %s: not persisted, skipping delivery", ev.Kind(), scope)
		return 0, false
	}

	b.stats.Incr(stats.Broadcasts)

	delivered := 0
	b.registry.each(func(c *Client) {
		if topic != "" && !c.subscribedTo(topic, id) {
			return
		}
		if c.queueMessage(payload) {
			delivered++
			return
		}
		b.stats.Incr(stats.DeliveryDrops)
	})

	return delivered, persisted
}
