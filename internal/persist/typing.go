package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
)

// typingStart refreshes the typing indicator for a user in a channel. DM
// typing without a channel id resolves the channel shared with the recipient.
func (p *Persister) typingStart(ctx context.Context, e *events.TypingStart) error {
	ts := e.Timestamp
	if ts == 0 {
		ts = p.nowMillis()
	}

	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		channelID := e.ChannelID
		channelType := channelTypeUnknown
		if channelID == "" {
			err := q.QueryRowContext(ctx,
				"SELECT id FROM dm_channels WHERE user_id = ? ORDER BY id LIMIT 1", e.RecipientID).Scan(&channelID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("no dm channel for user %s", e.RecipientID)
			}
			if err != nil {
				return fmt.Errorf("lookup dm channel: %w", err)
			}
			channelType = channelTypeDM
		}

		if err := p.ensureUser(ctx, q, e.UserID, ""); err != nil {
			return err
		}
		if err := p.ensureChannel(ctx, q, channelID, "", channelType); err != nil {
			return err
		}

		return database.Upsert(ctx, q, "typing_indicators", []string{"user_id", "channel_id"}, database.Row{
			{Column: "user_id", Value: e.UserID},
			{Column: "channel_id", Value: channelID},
			{Column: "timestamp", Value: ts},
		})
	})
}
