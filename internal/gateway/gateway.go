package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/persist"
	"github.com/npezzotti/guild-relay/internal/presence"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildMessageTyping |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsDirectMessageReactions |
	discordgo.IntentsDirectMessageTyping |
	discordgo.IntentsMessageContent

var (
	_ persist.NameResolver = (*Gateway)(nil)
	_ presence.Feed        = (*Gateway)(nil)
)

// Relay is the set of fan-out entry points gateway notifications feed.
type Relay interface {
	BroadcastAll(ctx context.Context, ev events.Event) int
	BroadcastToChannel(ctx context.Context, channelID string, ev events.Event) int
	BroadcastToDm(ctx context.Context, userID string, ev events.Event) int
	BroadcastToGuild(ctx context.Context, guildID string, ev events.Event) int
}

// PresenceTracker receives member statuses observed on the gateway.
type PresenceTracker interface {
	Rebuild(ctx context.Context) error
	Observe(ctx context.Context, guildID, guildName string, m presence.Member) bool
	Seed(userID, status string)
}

// Gateway connects to Discord, translates gateway notifications into relay
// events and answers name and presence lookups from its state cache.
type Gateway struct {
	session  *discordgo.Session
	log      *log.Logger
	relay    Relay
	presence PresenceTracker

	mu sync.Mutex
	// guilds announced as unavailable in READY, reported as GUILD_READY
	// when their GUILD_CREATE arrives
	pending map[string]struct{}
}

func New(token string, logger *log.Logger) (*Gateway, error) {
	if token == "" {
		return nil, errors.New("discord token is required")
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = intents
	s.StateEnabled = true
	// handlers run in gateway order
	s.SyncEvents = true

	return newGateway(s, logger), nil
}

func newGateway(s *discordgo.Session, logger *log.Logger) *Gateway {
	return &Gateway{
		session: s,
		log:     logger,
		pending: make(map[string]struct{}),
	}
}

// Attach sets the consumers of gateway notifications. It must be called
// before Open.
func (g *Gateway) Attach(relay Relay, tracker PresenceTracker) {
	g.relay = relay
	g.presence = tracker
}

// Open registers the notification handlers and connects.
func (g *Gateway) Open() error {
	if g.relay == nil || g.presence == nil {
		return errors.New("gateway opened before Attach")
	}

	g.addHandlers()
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	g.log.Println("connected to discord gateway")
	return nil
}

func (g *Gateway) Close() error {
	g.log.Println("closing discord gateway")
	return g.session.Close()
}

// BotID returns the id of the connected bot user, or "" before READY.
func (g *Gateway) BotID() string {
	if g.session.State == nil || g.session.State.User == nil {
		return ""
	}
	return g.session.State.User.ID
}

func (g *Gateway) UserName(ctx context.Context, id string) (string, error) {
	u, err := g.session.User(id, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("lookup user %s: %w", id, err)
	}
	return u.Username, nil
}

func (g *Gateway) GuildName(ctx context.Context, id string) (string, error) {
	if guild, err := g.session.State.Guild(id); err == nil && guild.Name != "" {
		return guild.Name, nil
	}

	guild, err := g.session.Guild(id, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("lookup guild %s: %w", id, err)
	}
	return guild.Name, nil
}

func (g *Gateway) ChannelName(ctx context.Context, id string) (string, error) {
	if ch, err := g.session.State.Channel(id); err == nil && ch.Name != "" {
		return ch.Name, nil
	}

	ch, err := g.session.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("lookup channel %s: %w", id, err)
	}
	return ch.Name, nil
}

// Snapshot reports the status of every cached member of every guild.
// Members without a presence are offline.
func (g *Gateway) Snapshot(_ context.Context) ([]presence.GuildSnapshot, error) {
	state := g.session.State
	if state == nil {
		return nil, errors.New("state cache disabled")
	}

	state.RLock()
	defer state.RUnlock()

	snaps := make([]presence.GuildSnapshot, 0, len(state.Guilds))
	for _, guild := range state.Guilds {
		statuses := make(map[string]string, len(guild.Presences))
		for _, p := range guild.Presences {
			if p.User != nil {
				statuses[p.User.ID] = string(p.Status)
			}
		}

		snap := presence.GuildSnapshot{GuildID: guild.ID, GuildName: guild.Name}
		for _, m := range guild.Members {
			if m.User == nil {
				continue
			}
			status, ok := statuses[m.User.ID]
			if !ok {
				status = string(discordgo.StatusOffline)
			}
			snap.Members = append(snap.Members, presence.Member{
				UserID:   m.User.ID,
				UserName: m.User.Username,
				Status:   status,
			})
		}
		snaps = append(snaps, snap)
	}

	return snaps, nil
}

// SendChannelMessage posts content to a channel and returns the sent
// message as a MESSAGE_RECEIVED event.
func (g *Gateway) SendChannelMessage(ctx context.Context, channelID, content string) (*events.Message, error) {
	ev, err := g.send(ctx, channelID, content)
	if err != nil {
		return nil, err
	}

	// message create responses carry no guild id
	if ev.GuildID == "" {
		ev.GuildID = g.channelGuild(ctx, channelID)
	}
	return ev, nil
}

// SendDirectMessage opens (or reuses) the DM channel with userID and posts
// content to it.
func (g *Gateway) SendDirectMessage(ctx context.Context, userID, content string) (*events.Message, error) {
	ch, err := g.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("open dm channel with %s: %w", userID, err)
	}

	ev, err := g.send(ctx, ch.ID, content)
	if err != nil {
		return nil, err
	}
	ev.GuildID = ""
	ev.Recipient = &events.Recipient{ID: userID}
	return ev, nil
}

func (g *Gateway) send(ctx context.Context, channelID, content string) (*events.Message, error) {
	m, err := g.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("send message to channel %s: %w", channelID, err)
	}

	ev := messageEvent(events.KindMessageReceived, m)
	if ev == nil {
		return nil, fmt.Errorf("send message to channel %s: response has no author", channelID)
	}
	return ev, nil
}

// channelGuild returns the guild channelID belongs to, or "" for direct
// messages and channels that cannot be looked up.
func (g *Gateway) channelGuild(ctx context.Context, channelID string) string {
	if g.session.State != nil {
		if ch, err := g.session.State.Channel(channelID); err == nil {
			return ch.GuildID
		}
	}

	ch, err := g.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		g.log.Printf("lookup guild of channel %s: %v", channelID, err)
		return ""
	}
	return ch.GuildID
}
