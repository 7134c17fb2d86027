package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/stats"
	"github.com/samber/lo"
	"github.com/teris-io/shortid"
)

const defaultPersistTimeout = 5 * time.Second

// Persister writes events to the store and reports whether they were stored.
type Persister interface {
	Process(ctx context.Context, ev events.Event) bool
}

// BotRecorder is implemented by persisters that need the id sent in IDENTIFY.
type BotRecorder interface {
	SetBotID(id string)
}

type Options struct {
	// PersistTimeout bounds each persistence call made while relaying.
	PersistTimeout time.Duration
	// DeliverUnpersisted relays events to sessions even when they could not be stored.
	DeliverUnpersisted bool
}

// Registry tracks connected sessions and applies their control messages.
type Registry struct {
	log            *log.Logger
	sessions       sync.Map
	persister      Persister
	stats          stats.StatsProvider
	broadcaster    *Broadcaster
	persistTimeout time.Duration
}

func NewRegistry(logger *log.Logger, persister Persister, st stats.StatsProvider, opts Options) *Registry {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}

	r := &Registry{
		log:            logger,
		persister:      persister,
		stats:          st,
		persistTimeout: opts.PersistTimeout,
	}
	r.broadcaster = &Broadcaster{
		registry:           r,
		persister:          persister,
		log:                logger,
		stats:              st,
		persistTimeout:     opts.PersistTimeout,
		deliverUnpersisted: opts.DeliverUnpersisted,
	}

	st.RegisterMetric(stats.ActiveSessions)
	st.RegisterMetric(stats.Broadcasts)
	st.RegisterMetric(stats.DeliveryDrops)

	return r
}

// Broadcaster returns the fan-out entry points bound to this registry.
func (r *Registry) Broadcaster() *Broadcaster {
	return r.broadcaster
}

// Connect registers c under a new session id and greets it.
func (r *Registry) Connect(c *Client) (string, error) {
	id, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	c.id = id
	r.sessions.Store(id, c)
	r.stats.Incr(stats.ActiveSessions)
	r.log.Printf("session %s connected", id)

	c.queueMessage(WelcomeMessage(id))
	return id, nil
}

// Disconnect removes the session and all of its subscriptions. It is safe
// to call more than once.
func (r *Registry) Disconnect(sessionID string) {
	v, ok := r.sessions.LoadAndDelete(sessionID)
	if !ok {
		return
	}

	c := v.(*Client)
	c.stopClient()
	r.stats.Decr(stats.ActiveSessions)
	r.log.Printf("session %s disconnected", sessionID)
}

func (r *Registry) Session(sessionID string) (*Client, bool) {
	v, ok := r.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*Client), true
}

func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (r *Registry) each(fn func(c *Client)) {
	r.sessions.Range(func(_, v any) bool {
		fn(v.(*Client))
		return true
	})
}

// HandleControlMessage applies one raw control frame from a session.
// Malformed frames are logged and dropped without a reply.
func (r *Registry) HandleControlMessage(ctx context.Context, sessionID string, raw []byte) {
	c, ok := r.Session(sessionID)
	if !ok {
		r.log.Printf("control message for unknown session %s", sessionID)
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.log.Printf("session %s: invalid control message: %v", sessionID, err)
		return
	}

	switch msg.Type {
	case Identify:
		r.identify(ctx, c, &msg)
	case SubscribeDM, SubscribeChannel, SubscribeGuild:
		r.subscribe(c, &msg)
	case UnsubscribeDM, UnsubscribeChannel, UnsubscribeGuild:
		r.unsubscribe(c, &msg)
	case Typing:
		r.typing(ctx, c, &msg)
	case Ping:
		var d pingData
		if err := decodeData(msg.Data, &d); err != nil {
			r.log.Printf("session %s: invalid PING: %v", sessionID, err)
			return
		}
		c.queueMessage(PongMessage(d.Timestamp))
	default:
		r.log.Printf("session %s: unknown control message type %q", sessionID, msg.Type)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (r *Registry) identify(ctx context.Context, c *Client, msg *ClientMessage) {
	var d identifyData
	if err := decodeData(msg.Data, &d); err != nil || d.BotID == "" {
		r.log.Printf("session %s: invalid IDENTIFY: missing botId", c.id)
		return
	}

	c.setBotID(d.BotID)
	if br, ok := r.persister.(BotRecorder); ok {
		br.SetBotID(d.BotID)
	}

	pctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()
	r.persister.Process(pctx, &events.UserUpdate{ID: d.BotID, Bot: true})
	r.persister.Process(pctx, &events.UserStatusUpdate{UserID: d.BotID, NewStatus: "online"})

	c.queueMessage(AckMessage(msg.Type, d.BotID))
}

func topicFor(msgType string) Topic {
	switch msgType {
	case SubscribeDM, UnsubscribeDM:
		return TopicDM
	case SubscribeChannel, UnsubscribeChannel:
		return TopicChannel
	default:
		return TopicGuild
	}
}

func (r *Registry) subscribe(c *Client, msg *ClientMessage) {
	var d subscribeData
	if err := decodeData(msg.Data, &d); err != nil {
		r.log.Printf("session %s: invalid %s: %v", c.id, msg.Type, err)
		return
	}

	topic := topicFor(msg.Type)
	var id string
	switch topic {
	case TopicDM:
		id = d.UserID
	case TopicChannel:
		id = lo.CoalesceOrEmpty(d.ChannelID, msg.ChannelID)
	case TopicGuild:
		id = lo.CoalesceOrEmpty(d.GuildID, msg.GuildID)
	}
	if id == "" {
		r.log.Printf("session %s: invalid %s: missing id", c.id, msg.Type)
		return
	}

	if prev := c.subscribe(topic, id); prev != "" && prev != id {
		r.log.Printf("session %s: replaced %s:%s with %s:%s", c.id, topic, prev, topic, id)
	}
	c.queueMessage(AckMessage(msg.Type, id))
}

func (r *Registry) unsubscribe(c *Client, msg *ClientMessage) {
	id := c.unsubscribe(topicFor(msg.Type))
	c.queueMessage(AckMessage(msg.Type, id))
}

// typing relays a typing notice from the identified bot, to the channel
// topic when a channel is given and to the recipient's DM topic otherwise.
func (r *Registry) typing(ctx context.Context, c *Client, msg *ClientMessage) {
	var d typingData
	if err := decodeData(msg.Data, &d); err != nil {
		r.log.Printf("session %s: invalid TYPING: %v", c.id, err)
		return
	}

	typer := c.BotID()
	if typer == "" {
		r.log.Printf("session %s: TYPING before IDENTIFY, ignoring", c.id)
		return
	}

	switch {
	case d.ChannelID != "":
		r.broadcaster.BroadcastToChannel(ctx, d.ChannelID, &events.TypingStart{
			UserID:    typer,
			ChannelID: d.ChannelID,
			Timestamp: Now().UnixMilli(),
		})
	case d.UserID != "":
		r.broadcaster.BroadcastToDm(ctx, d.UserID, &events.TypingStart{
			UserID:      typer,
			RecipientID: d.UserID,
			Timestamp:   Now().UnixMilli(),
		})
	default:
		r.log.Printf("session %s: invalid TYPING: missing channelId and userId", c.id)
	}
}

// Shutdown disconnects every session. Write pumps send a close frame on exit.
func (r *Registry) Shutdown(_ context.Context) error {
	r.log.Println("disconnecting sessions")
	r.each(func(c *Client) {
		r.Disconnect(c.id)
	})

	if n := r.Len(); n > 0 {
		return fmt.Errorf("%d sessions still registered", n)
	}
	return nil
}
