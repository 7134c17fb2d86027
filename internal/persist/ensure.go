package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/guild-relay/internal/database"
)

const (
	unknownUser    = "Unknown User"
	unknownGuild   = "Unknown Guild"
	unknownChannel = "Unknown Channel"
	unknownRole    = "Unknown Role"

	channelTypeUnknown = "UNKNOWN"
	channelTypeDM      = "DM"
)

// NameResolver looks up display names for rows created as placeholders.
type NameResolver interface {
	UserName(ctx context.Context, id string) (string, error)
	GuildName(ctx context.Context, id string) (string, error)
	ChannelName(ctx context.Context, id string) (string, error)
}

func exists(ctx context.Context, q database.Querier, table, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s %s: %w", table, id, err)
	}

	return true, nil
}

// resolve asks lookup for a display name, falling back to placeholder when
// the lookup fails or does not answer within resolveTimeout.
func (p *Persister) resolve(ctx context.Context, lookup func(context.Context, string) (string, error), id, placeholder string) string {
	rctx, cancel := context.WithTimeout(ctx, p.resolveTimeout)
	defer cancel()

	name, err := lookup(rctx, id)
	if err != nil || name == "" {
		if err != nil {
			p.log.Printf("resolve name for %s: %v", id, err)
		}
		return placeholder
	}

	return name
}

func (p *Persister) ensureUser(ctx context.Context, q database.Querier, id, name string) error {
	ok, err := exists(ctx, q, "users", id)
	if err != nil || ok {
		return err
	}

	if name == "" {
		name = unknownUser
		if p.names != nil {
			name = p.resolve(ctx, p.names.UserName, id, unknownUser)
		}
	}

	_, err = database.InsertIgnore(ctx, q, "users", []string{"id"}, database.Row{
		{Column: "id", Value: id},
		{Column: "username", Value: name},
	})
	return err
}

func (p *Persister) ensureGuild(ctx context.Context, q database.Querier, id string) error {
	ok, err := exists(ctx, q, "guilds", id)
	if err != nil || ok {
		return err
	}

	name := unknownGuild
	if p.names != nil {
		name = p.resolve(ctx, p.names.GuildName, id, unknownGuild)
	}

	_, err = database.InsertIgnore(ctx, q, "guilds", []string{"id"}, database.Row{
		{Column: "id", Value: id},
		{Column: "name", Value: name},
	})
	return err
}

// ensureChannel creates a placeholder channel of channelType, and its guild
// when guildID is set, unless the channel already exists.
func (p *Persister) ensureChannel(ctx context.Context, q database.Querier, id, guildID, channelType string) error {
	ok, err := exists(ctx, q, "channels", id)
	if err != nil || ok {
		return err
	}

	if guildID != "" {
		if err := p.ensureGuild(ctx, q, guildID); err != nil {
			return err
		}
	}

	name := unknownChannel
	if p.names != nil {
		name = p.resolve(ctx, p.names.ChannelName, id, unknownChannel)
	}

	_, err = database.InsertIgnore(ctx, q, "channels", []string{"id"}, database.Row{
		{Column: "id", Value: id},
		{Column: "guild_id", Value: nullString(guildID)},
		{Column: "name", Value: name},
		{Column: "type", Value: channelType},
	})
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
