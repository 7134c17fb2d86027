package persist

import (
	"context"
	"fmt"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
)

func (p *Persister) reaction(ctx context.Context, e *events.Reaction) error {
	if e.Type == events.KindReactionRemove {
		if _, err := p.store.ExecContext(ctx,
			"DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?",
			e.MessageID, e.UserID, e.Emoji); err != nil {
			return fmt.Errorf("delete reaction: %w", err)
		}
		return nil
	}

	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		ok, err := exists(ctx, q, "messages", e.MessageID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("message %s is not stored", e.MessageID)
		}

		if err := p.ensureUser(ctx, q, e.UserID, ""); err != nil {
			return err
		}

		_, err = database.InsertIgnore(ctx, q, "reactions", []string{"message_id", "user_id", "emoji"}, database.Row{
			{Column: "message_id", Value: e.MessageID},
			{Column: "user_id", Value: e.UserID},
			{Column: "emoji", Value: e.Emoji},
		})
		return err
	})
}
