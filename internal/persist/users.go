package persist

import (
	"context"
	"strings"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
)

type userFields struct {
	id            string
	username      string
	discriminator string
	globalName    string
	avatarURL     string
	bot           bool
}

// writeUser creates the user if needed and overwrites only the fields that
// carry a value. Message authors are written this way.
func (p *Persister) writeUser(ctx context.Context, q database.Querier, u userFields) error {
	if err := p.ensureUser(ctx, q, u.id, u.username); err != nil {
		return err
	}

	row := database.Row{
		{Column: "id", Value: u.id},
		{Column: "is_bot", Value: u.bot},
	}
	if u.username != "" {
		row = append(row, database.Field{Column: "username", Value: u.username})
	}
	if u.discriminator != "" {
		row = append(row, database.Field{Column: "discriminator", Value: u.discriminator})
	}
	if u.globalName != "" {
		row = append(row, database.Field{Column: "global_name", Value: u.globalName})
	}
	if u.avatarURL != "" {
		row = append(row, database.Field{Column: "avatar_url", Value: u.avatarURL})
	}

	_, err := database.Update(ctx, q, "users", []string{"id"}, row)
	return err
}

// userUpdate overwrites every mutable profile column; empty optional fields
// are cleared. An empty username keeps the stored one.
func (p *Persister) userUpdate(ctx context.Context, e *events.UserUpdate) error {
	id := e.Key()
	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		if err := p.ensureUser(ctx, q, id, e.Username); err != nil {
			return err
		}

		row := database.Row{
			{Column: "id", Value: id},
			{Column: "discriminator", Value: nullString(e.Discriminator)},
			{Column: "global_name", Value: nullString(e.GlobalName)},
			{Column: "avatar_url", Value: nullString(e.AvatarURL)},
			{Column: "is_bot", Value: e.Bot},
		}
		if e.Username != "" {
			row = append(row, database.Field{Column: "username", Value: e.Username})
		}

		_, err := database.Update(ctx, q, "users", []string{"id"}, row)
		return err
	})
}

func (p *Persister) userStatus(ctx context.Context, e *events.UserStatusUpdate) error {
	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		if err := p.ensureUser(ctx, q, e.UserID, e.UserName); err != nil {
			return err
		}

		row := database.Row{
			{Column: "id", Value: e.UserID},
			{Column: "status", Value: strings.ToLower(e.NewStatus)},
		}
		if e.IsOwner != nil {
			row = append(row, database.Field{Column: "is_owner", Value: *e.IsOwner})
		}

		_, err := database.Update(ctx, q, "users", []string{"id"}, row)
		return err
	})
}
