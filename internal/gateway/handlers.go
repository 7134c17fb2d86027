package gateway

import (
	"context"
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/presence"
	"github.com/samber/lo"
)

func (g *Gateway) addHandlers() {
	s := g.session
	s.AddHandler(g.onReady)
	s.AddHandler(g.onResumed)
	s.AddHandler(g.onGuildCreate)
	s.AddHandler(g.onGuildUpdate)
	s.AddHandler(g.onGuildDelete)
	s.AddHandler(g.onGuildMemberAdd)
	s.AddHandler(g.onGuildMemberUpdate)
	s.AddHandler(g.onGuildMemberRemove)
	s.AddHandler(g.onGuildRoleCreate)
	s.AddHandler(g.onGuildRoleUpdate)
	s.AddHandler(g.onGuildRoleDelete)
	s.AddHandler(g.onChannelCreate)
	s.AddHandler(g.onChannelUpdate)
	s.AddHandler(g.onChannelDelete)
	s.AddHandler(g.onMessageCreate)
	s.AddHandler(g.onMessageUpdate)
	s.AddHandler(g.onMessageDelete)
	s.AddHandler(g.onReactionAdd)
	s.AddHandler(g.onReactionRemove)
	s.AddHandler(g.onTypingStart)
	s.AddHandler(g.onPresenceUpdate)
	s.AddHandler(g.onUserUpdate)
}

func (g *Gateway) isSelf(userID string) bool {
	return userID != "" && userID == g.BotID()
}

// dmCounterpart returns the user on the other side of a cached DM channel.
func (g *Gateway) dmCounterpart(channelID string) string {
	ch, err := g.session.State.Channel(channelID)
	if err != nil {
		return ""
	}

	u, ok := lo.Find(ch.Recipients, func(u *discordgo.User) bool {
		return u != nil && !g.isSelf(u.ID)
	})
	if !ok {
		return ""
	}
	return u.ID
}

// relayInChannel sends ev to the channel topic for guild channels and to
// the counterpart's DM topic for direct messages. DM events whose
// counterpart is unknown go to every session.
func (g *Gateway) relayInChannel(ctx context.Context, guildID, channelID string, ev events.Event) {
	if guildID != "" {
		g.relay.BroadcastToChannel(ctx, channelID, ev)
		return
	}

	if user := g.dmCounterpart(channelID); user != "" {
		g.relay.BroadcastToDm(ctx, user, ev)
		return
	}
	g.relay.BroadcastAll(ctx, ev)
}

func (g *Gateway) onReady(s *discordgo.Session, r *discordgo.Ready) {
	g.log.Printf("gateway ready as %s (%d guilds)", r.User.Username, len(r.Guilds))

	g.mu.Lock()
	for _, guild := range r.Guilds {
		g.pending[guild.ID] = struct{}{}
	}
	g.mu.Unlock()

	ctx := context.Background()
	bot := userEvent(r.User)
	bot.Bot = true
	g.relay.BroadcastAll(ctx, bot)

	if err := g.presence.Rebuild(ctx); err != nil {
		g.log.Printf("rebuild presence cache: %v", err)
	}
}

func (g *Gateway) onResumed(s *discordgo.Session, _ *discordgo.Resumed) {
	g.log.Println("gateway session resumed")
	if err := g.presence.Rebuild(context.Background()); err != nil {
		g.log.Printf("rebuild presence cache: %v", err)
	}
}

func (g *Gateway) onGuildCreate(s *discordgo.Session, e *discordgo.GuildCreate) {
	if e.Guild == nil || e.Unavailable {
		return
	}

	g.mu.Lock()
	_, ready := g.pending[e.ID]
	delete(g.pending, e.ID)
	g.mu.Unlock()

	kind := events.KindGuildJoin
	if ready {
		kind = events.KindGuildReady
	}

	g.seedPresences(e.Guild)

	ctx := context.Background()
	g.relay.BroadcastAll(ctx, guildEvent(kind, e.Guild))
	g.mirrorGuild(ctx, e.Guild)
}

// seedPresences records the status of every member of guild. Members
// missing from the presence list are offline.
func (g *Gateway) seedPresences(guild *discordgo.Guild) {
	statuses := make(map[string]string, len(guild.Presences))
	for _, p := range guild.Presences {
		if p.User != nil {
			statuses[p.User.ID] = string(p.Status)
		}
	}

	for _, m := range guild.Members {
		if m.User == nil {
			continue
		}
		status, ok := statuses[m.User.ID]
		if !ok {
			status = string(discordgo.StatusOffline)
		}
		g.presence.Seed(m.User.ID, status)
		delete(statuses, m.User.ID)
	}
	for id, status := range statuses {
		g.presence.Seed(id, status)
	}
}

// mirrorGuild relays the channels and roles guild arrives with, categories
// first so children never reference a missing parent.
func (g *Gateway) mirrorGuild(ctx context.Context, guild *discordgo.Guild) {
	channels := slices.Clone(guild.Channels)
	slices.SortStableFunc(channels, func(a, b *discordgo.Channel) int {
		return categoryRank(a) - categoryRank(b)
	})
	for _, c := range channels {
		if c == nil {
			continue
		}
		ev := channelEvent(events.KindChannelCreate, c)
		ev.GuildID = guild.ID
		g.relay.BroadcastToGuild(ctx, guild.ID, ev)
	}

	for _, r := range guild.Roles {
		if r != nil {
			g.relay.BroadcastToGuild(ctx, guild.ID, roleEvent(events.KindRoleCreate, guild.ID, r))
		}
	}
}

func categoryRank(c *discordgo.Channel) int {
	if c != nil && c.Type == discordgo.ChannelTypeGuildCategory {
		return 0
	}
	return 1
}

func (g *Gateway) onGuildUpdate(s *discordgo.Session, e *discordgo.GuildUpdate) {
	if e.Guild == nil {
		return
	}
	g.relay.BroadcastAll(context.Background(), guildEvent(events.KindGuildUpdate, e.Guild))
}

func (g *Gateway) onGuildDelete(s *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Guild == nil || e.Unavailable {
		return
	}

	name := ""
	if e.BeforeDelete != nil {
		name = e.BeforeDelete.Name
	}
	ev, err := events.NewPassthrough(events.KindGuildLeave, map[string]string{
		"guildId":   e.ID,
		"guildName": name,
	})
	if err != nil {
		g.log.Printf("guild leave %s: %v", e.ID, err)
		return
	}
	g.relay.BroadcastAll(context.Background(), ev)
}

func (g *Gateway) onGuildMemberAdd(s *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.Member == nil || e.User == nil {
		return
	}

	status := string(discordgo.StatusOffline)
	if p, err := s.State.Presence(e.GuildID, e.User.ID); err == nil {
		status = string(p.Status)
	}
	g.presence.Seed(e.User.ID, status)

	g.relay.BroadcastToGuild(context.Background(), e.GuildID, memberJoinEvent(e.Member))
}

func (g *Gateway) roleRefs(guildID string, ids []string) []events.RoleRef {
	return lo.Map(ids, func(id string, _ int) events.RoleRef {
		ref := events.RoleRef{ID: id}
		if r, err := g.session.State.Role(guildID, id); err == nil {
			ref.Name = r.Name
			ref.Color = r.Color
		}
		return ref
	})
}

// onGuildMemberUpdate relays role changes. The previous member is only
// known when it was cached before the update.
func (g *Gateway) onGuildMemberUpdate(s *discordgo.Session, e *discordgo.GuildMemberUpdate) {
	if e.Member == nil || e.User == nil || e.BeforeUpdate == nil {
		return
	}

	ctx := context.Background()
	added, removed := roleChanges(e.BeforeUpdate.Roles, e.Roles)
	if len(added) > 0 {
		g.relay.BroadcastToGuild(ctx, e.GuildID, &events.GuildMemberRoles{
			Type:    events.KindGuildMemberRoleAdd,
			GuildID: e.GuildID,
			UserID:  e.User.ID,
			Roles:   g.roleRefs(e.GuildID, added),
		})
	}
	if len(removed) > 0 {
		g.relay.BroadcastToGuild(ctx, e.GuildID, &events.GuildMemberRoles{
			Type:    events.KindGuildMemberRoleRem,
			GuildID: e.GuildID,
			UserID:  e.User.ID,
			Roles:   g.roleRefs(e.GuildID, removed),
		})
	}
}

func (g *Gateway) onGuildMemberRemove(s *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if e.Member == nil || e.User == nil {
		return
	}
	g.relay.BroadcastToGuild(context.Background(), e.GuildID, &events.GuildMemberLeave{
		GuildID: e.GuildID,
		UserID:  e.User.ID,
	})
}

func (g *Gateway) onGuildRoleCreate(s *discordgo.Session, e *discordgo.GuildRoleCreate) {
	if e.GuildRole == nil || e.Role == nil {
		return
	}
	g.relay.BroadcastToGuild(context.Background(), e.GuildID, roleEvent(events.KindRoleCreate, e.GuildID, e.Role))
}

func (g *Gateway) onGuildRoleUpdate(s *discordgo.Session, e *discordgo.GuildRoleUpdate) {
	if e.GuildRole == nil || e.Role == nil {
		return
	}
	g.relay.BroadcastToGuild(context.Background(), e.GuildID, roleEvent(events.KindRoleUpdate, e.GuildID, e.Role))
}

func (g *Gateway) onGuildRoleDelete(s *discordgo.Session, e *discordgo.GuildRoleDelete) {
	g.relay.BroadcastToGuild(context.Background(), e.GuildID, &events.RoleDelete{
		RoleID:  e.RoleID,
		GuildID: e.GuildID,
	})
}

func (g *Gateway) relayChannel(kind events.Kind, c *discordgo.Channel) {
	if c == nil {
		return
	}

	ctx := context.Background()
	ev := channelEvent(kind, c)
	if c.GuildID != "" {
		g.relay.BroadcastToGuild(ctx, c.GuildID, ev)
		return
	}
	g.relayInChannel(ctx, "", c.ID, ev)
}

func (g *Gateway) onChannelCreate(s *discordgo.Session, e *discordgo.ChannelCreate) {
	g.relayChannel(events.KindChannelCreate, e.Channel)
}

func (g *Gateway) onChannelUpdate(s *discordgo.Session, e *discordgo.ChannelUpdate) {
	g.relayChannel(events.KindChannelUpdate, e.Channel)
}

func (g *Gateway) onChannelDelete(s *discordgo.Session, e *discordgo.ChannelDelete) {
	if e.Channel == nil {
		return
	}

	ev := &events.ChannelDelete{ChannelID: e.ID, GuildID: e.GuildID}
	if e.GuildID != "" {
		g.relay.BroadcastToGuild(context.Background(), e.GuildID, ev)
		return
	}
	g.relay.BroadcastAll(context.Background(), ev)
}

// onMessageCreate relays messages from everyone but the bot itself. Messages
// the bot sends are relayed by the sender.
func (g *Gateway) onMessageCreate(s *discordgo.Session, e *discordgo.MessageCreate) {
	ev := messageEvent(events.KindMessageReceived, e.Message)
	if ev == nil || g.isSelf(ev.Author.ID) {
		return
	}

	ctx := context.Background()
	if ev.GuildID != "" {
		g.relay.BroadcastToChannel(ctx, ev.ChannelID, ev)
		return
	}

	if ev.Author.Bot {
		if user := g.dmCounterpart(ev.ChannelID); user != "" {
			ev.Recipient = &events.Recipient{ID: user}
		}
	}
	g.relay.BroadcastToDm(ctx, ev.Author.ID, ev)
}

func (g *Gateway) onMessageUpdate(s *discordgo.Session, e *discordgo.MessageUpdate) {
	ev := messageEvent(events.KindMessageUpdate, e.Message)
	if ev == nil {
		return
	}
	g.relayInChannel(context.Background(), ev.GuildID, ev.ChannelID, ev)
}

func (g *Gateway) onMessageDelete(s *discordgo.Session, e *discordgo.MessageDelete) {
	if e.Message == nil {
		return
	}
	g.relayInChannel(context.Background(), e.GuildID, e.ChannelID, &events.MessageDelete{
		MessageID: e.ID,
		ChannelID: e.ChannelID,
	})
}

func (g *Gateway) onReactionAdd(s *discordgo.Session, e *discordgo.MessageReactionAdd) {
	if e.MessageReaction == nil {
		return
	}
	g.relayInChannel(context.Background(), e.GuildID, e.ChannelID, reactionEvent(events.KindReactionAdd, e.MessageReaction))
}

func (g *Gateway) onReactionRemove(s *discordgo.Session, e *discordgo.MessageReactionRemove) {
	if e.MessageReaction == nil {
		return
	}
	g.relayInChannel(context.Background(), e.GuildID, e.ChannelID, reactionEvent(events.KindReactionRemove, e.MessageReaction))
}

func (g *Gateway) onTypingStart(s *discordgo.Session, e *discordgo.TypingStart) {
	if g.isSelf(e.UserID) {
		return
	}

	ev := &events.TypingStart{
		UserID:    e.UserID,
		ChannelID: e.ChannelID,
		Timestamp: int64(e.Timestamp) * 1000,
	}
	if e.GuildID != "" {
		g.relay.BroadcastToChannel(context.Background(), e.ChannelID, ev)
		return
	}
	g.relay.BroadcastToDm(context.Background(), e.UserID, ev)
}

func (g *Gateway) onPresenceUpdate(s *discordgo.Session, e *discordgo.PresenceUpdate) {
	if e.User == nil || e.User.ID == "" {
		return
	}

	name := e.User.Username
	if name == "" {
		if m, err := s.State.Member(e.GuildID, e.User.ID); err == nil && m.User != nil {
			name = m.User.Username
		}
	}
	guildName := ""
	if guild, err := s.State.Guild(e.GuildID); err == nil {
		guildName = guild.Name
	}

	g.presence.Observe(context.Background(), e.GuildID, guildName, presence.Member{
		UserID:   e.User.ID,
		UserName: name,
		Status:   string(e.Status),
	})
}

func (g *Gateway) onUserUpdate(s *discordgo.Session, e *discordgo.UserUpdate) {
	if e.User == nil {
		return
	}
	g.relay.BroadcastAll(context.Background(), userEvent(e.User))
}
