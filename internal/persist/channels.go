package persist

import (
	"context"
	"fmt"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
)

const channelTypeCategory = "GUILD_CATEGORY"

func (p *Persister) channel(ctx context.Context, e *events.Channel) error {
	name := e.ChannelName
	if name == "" {
		name = unknownChannel
	}

	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		if e.GuildID != "" {
			if err := p.ensureGuild(ctx, q, e.GuildID); err != nil {
				return err
			}
		}
		if e.ParentID != "" && e.ParentID != e.ChannelID {
			if err := p.ensureChannel(ctx, q, e.ParentID, e.GuildID, channelTypeCategory); err != nil {
				return err
			}
		}

		return database.Upsert(ctx, q, "channels", []string{"id"}, database.Row{
			{Column: "id", Value: e.ChannelID},
			{Column: "guild_id", Value: nullString(e.GuildID)},
			{Column: "parent_id", Value: nullString(e.ParentID)},
			{Column: "name", Value: name},
			{Column: "type", Value: e.ChannelType},
			{Column: "topic", Value: nullString(e.Topic)},
			{Column: "position", Value: e.Position},
			{Column: "is_nsfw", Value: e.NSFW},
		})
	})
}

func (p *Persister) channelDelete(ctx context.Context, e *events.ChannelDelete) error {
	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM dm_channels WHERE id = ?", e.ChannelID); err != nil {
			return fmt.Errorf("delete dm channel: %w", err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", e.ChannelID); err != nil {
			return fmt.Errorf("delete channel: %w", err)
		}
		return nil
	})
}
