package persist

import (
	"context"
	"fmt"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
)

func (p *Persister) guild(ctx context.Context, e *events.Guild) error {
	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		if e.OwnerID != "" {
			if err := p.ensureUser(ctx, q, e.OwnerID, ""); err != nil {
				return err
			}
		}

		return database.Upsert(ctx, q, "guilds", []string{"id"}, database.Row{
			{Column: "id", Value: e.ID},
			{Column: "name", Value: e.Name},
			{Column: "icon_url", Value: nullString(e.IconURL)},
			{Column: "owner_id", Value: nullString(e.OwnerID)},
			{Column: "member_count", Value: e.MemberCount},
			{Column: "description", Value: nullString(e.Description)},
		})
	})
}

func (p *Persister) guildMemberJoin(ctx context.Context, e *events.GuildMemberJoin) error {
	var (
		userID   = e.MemberID()
		username string
		nickname string
		joinedAt = e.JoinTime
	)
	if e.Member != nil {
		username = e.Member.Username
		nickname = e.Member.Nickname
		if e.Member.JoinedAt != 0 {
			joinedAt = e.Member.JoinedAt
		}
	}
	if joinedAt == 0 {
		joinedAt = p.nowMillis()
	}

	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		if err := p.ensureGuild(ctx, q, e.GuildID); err != nil {
			return err
		}
		if err := p.ensureUser(ctx, q, userID, username); err != nil {
			return err
		}

		return database.Upsert(ctx, q, "guild_members", []string{"user_id", "guild_id"}, database.Row{
			{Column: "user_id", Value: userID},
			{Column: "guild_id", Value: e.GuildID},
			{Column: "nickname", Value: nullString(nickname)},
			{Column: "joined_at", Value: joinedAt},
		})
	})
}

// guildMemberLeave drops the membership and the member's roles in that guild only.
func (p *Persister) guildMemberLeave(ctx context.Context, e *events.GuildMemberLeave) error {
	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		if _, err := q.ExecContext(ctx,
			"DELETE FROM guild_members WHERE user_id = ? AND guild_id = ?", e.UserID, e.GuildID); err != nil {
			return fmt.Errorf("delete guild member: %w", err)
		}

		if _, err := q.ExecContext(ctx,
			"DELETE FROM user_roles WHERE user_id = ? AND guild_id = ?", e.UserID, e.GuildID); err != nil {
			return fmt.Errorf("delete user roles: %w", err)
		}

		return nil
	})
}

func (p *Persister) guildMemberRoles(ctx context.Context, e *events.GuildMemberRoles) error {
	if e.Type == events.KindGuildMemberRoleRem {
		return p.store.WithTransaction(ctx, func(q database.Querier) error {
			for _, r := range e.Roles {
				if _, err := q.ExecContext(ctx,
					"DELETE FROM user_roles WHERE user_id = ? AND role_id = ?", e.UserID, r.ID); err != nil {
					return fmt.Errorf("delete user role %s: %w", r.ID, err)
				}
			}
			return nil
		})
	}

	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		if err := p.ensureGuild(ctx, q, e.GuildID); err != nil {
			return err
		}
		if err := p.ensureUser(ctx, q, e.UserID, ""); err != nil {
			return err
		}

		for _, r := range e.Roles {
			name := r.Name
			if name == "" {
				name = unknownRole
			}
			if _, err := database.InsertIgnore(ctx, q, "roles", []string{"id"}, database.Row{
				{Column: "id", Value: r.ID},
				{Column: "guild_id", Value: e.GuildID},
				{Column: "name", Value: name},
				{Column: "color", Value: r.Color},
			}); err != nil {
				return err
			}

			if _, err := database.InsertIgnore(ctx, q, "user_roles", []string{"user_id", "role_id"}, database.Row{
				{Column: "user_id", Value: e.UserID},
				{Column: "role_id", Value: r.ID},
				{Column: "guild_id", Value: e.GuildID},
			}); err != nil {
				return err
			}
		}

		return nil
	})
}
