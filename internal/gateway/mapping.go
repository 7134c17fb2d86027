package gateway

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/samber/lo"
)

func channelTypeName(t discordgo.ChannelType) string {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return "GUILD_TEXT"
	case discordgo.ChannelTypeDM:
		return "DM"
	case discordgo.ChannelTypeGuildVoice:
		return "GUILD_VOICE"
	case discordgo.ChannelTypeGroupDM:
		return "GROUP_DM"
	case discordgo.ChannelTypeGuildCategory:
		return "GUILD_CATEGORY"
	case discordgo.ChannelTypeGuildNews:
		return "GUILD_NEWS"
	case discordgo.ChannelTypeGuildNewsThread:
		return "GUILD_NEWS_THREAD"
	case discordgo.ChannelTypeGuildPublicThread:
		return "GUILD_PUBLIC_THREAD"
	case discordgo.ChannelTypeGuildPrivateThread:
		return "GUILD_PRIVATE_THREAD"
	case discordgo.ChannelTypeGuildStageVoice:
		return "GUILD_STAGE_VOICE"
	case discordgo.ChannelTypeGuildForum:
		return "GUILD_FORUM"
	default:
		return "UNKNOWN"
	}
}

func guildEvent(kind events.Kind, g *discordgo.Guild) *events.Guild {
	return &events.Guild{
		Type:        kind,
		ID:          g.ID,
		Name:        g.Name,
		IconURL:     g.IconURL(""),
		OwnerID:     g.OwnerID,
		MemberCount: g.MemberCount,
		Description: g.Description,
	}
}

func userEvent(u *discordgo.User) *events.UserUpdate {
	return &events.UserUpdate{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		GlobalName:    u.GlobalName,
		AvatarURL:     u.AvatarURL(""),
		Bot:           u.Bot,
	}
}

func authorFrom(u *discordgo.User) *events.Author {
	return &events.Author{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		GlobalName:    u.GlobalName,
		AvatarURL:     u.AvatarURL(""),
		Bot:           u.Bot,
	}
}

func memberJoinEvent(m *discordgo.Member) *events.GuildMemberJoin {
	ev := &events.GuildMemberJoin{GuildID: m.GuildID}
	if m.User == nil {
		return ev
	}

	ev.Member = &events.Member{
		ID:       m.User.ID,
		Username: m.User.Username,
		Nickname: m.Nick,
		Bot:      m.User.Bot,
	}
	if !m.JoinedAt.IsZero() {
		ev.Member.JoinedAt = m.JoinedAt.UnixMilli()
	}
	return ev
}

func roleEvent(kind events.Kind, guildID string, r *discordgo.Role) *events.Role {
	return &events.Role{
		Type:         kind,
		RoleID:       r.ID,
		GuildID:      guildID,
		RoleName:     r.Name,
		RoleColor:    r.Color,
		RolePosition: r.Position,
		Permissions:  r.Permissions,
		Mentionable:  r.Mentionable,
		Hoisted:      r.Hoist,
	}
}

func channelEvent(kind events.Kind, c *discordgo.Channel) *events.Channel {
	return &events.Channel{
		Type:        kind,
		ChannelID:   c.ID,
		GuildID:     c.GuildID,
		ChannelName: c.Name,
		ChannelType: channelTypeName(c.Type),
		Topic:       c.Topic,
		ParentID:    c.ParentID,
		Position:    c.Position,
		NSFW:        c.NSFW,
	}
}

// messageEvent maps m onto a message event. It returns nil for partial
// updates that carry no author.
func messageEvent(kind events.Kind, m *discordgo.Message) *events.Message {
	if m == nil || m.Author == nil {
		return nil
	}

	ev := &events.Message{
		Type:      kind,
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Author:    authorFrom(m.Author),
	}
	if !m.Timestamp.IsZero() {
		ev.Timestamp = m.Timestamp.UnixMilli()
	}
	if m.EditedTimestamp != nil {
		ev.EditedTimestamp = lo.ToPtr(m.EditedTimestamp.UnixMilli())
	}
	if m.MessageReference != nil && m.MessageReference.MessageID != "" {
		ev.ReferencedMessage = &events.MessageRef{MessageID: m.MessageReference.MessageID}
	}

	ev.Attachments = lo.Map(m.Attachments, func(a *discordgo.MessageAttachment, _ int) events.Attachment {
		return events.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        int64(a.Size),
		}
	})
	ev.Embeds = lo.Map(m.Embeds, func(e *discordgo.MessageEmbed, _ int) events.Embed {
		return embedFrom(e)
	})

	return ev
}

func embedFrom(e *discordgo.MessageEmbed) events.Embed {
	out := events.Embed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
	}
	if e.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
			out.Timestamp = ts.UnixMilli()
		}
	}
	out.Fields = lo.Map(e.Fields, func(f *discordgo.MessageEmbedField, _ int) events.EmbedField {
		return events.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline}
	})
	return out
}

func reactionEvent(kind events.Kind, r *discordgo.MessageReaction) *events.Reaction {
	return &events.Reaction{
		Type:      kind,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.APIName(),
		ChannelID: r.ChannelID,
	}
}

// roleChanges splits the difference between two role id lists into the
// roles gained and the roles lost.
func roleChanges(before, after []string) (added, removed []string) {
	return lo.Difference(after, before)
}
