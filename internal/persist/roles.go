package persist

import (
	"context"
	"fmt"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
)

func (p *Persister) role(ctx context.Context, e *events.Role) error {
	name := e.RoleName
	if name == "" {
		name = unknownRole
	}

	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		if err := p.ensureGuild(ctx, q, e.GuildID); err != nil {
			return err
		}

		return database.Upsert(ctx, q, "roles", []string{"id"}, database.Row{
			{Column: "id", Value: e.RoleID},
			{Column: "guild_id", Value: e.GuildID},
			{Column: "name", Value: name},
			{Column: "color", Value: e.RoleColor},
			{Column: "position", Value: e.RolePosition},
			{Column: "permissions", Value: e.Permissions},
			{Column: "is_mentionable", Value: e.Mentionable},
			{Column: "is_hoisted", Value: e.Hoisted},
		})
	})
}

func (p *Persister) roleDelete(ctx context.Context, e *events.RoleDelete) error {
	if _, err := p.store.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", e.RoleID); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}
