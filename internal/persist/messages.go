package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
)

// message writes a message with its author, attachments, embeds and, for
// direct messages, the DM channel bookkeeping in one transaction.
func (p *Persister) message(ctx context.Context, e *events.Message) error {
	ts := e.Timestamp
	if ts == 0 {
		ts = p.nowMillis()
	}

	var edited sql.NullInt64
	switch {
	case e.EditedTimestamp != nil:
		edited = sql.NullInt64{Int64: *e.EditedTimestamp, Valid: true}
	case e.Type == events.KindMessageUpdate:
		edited = sql.NullInt64{Int64: p.nowMillis(), Valid: true}
	}

	dm := e.GuildID == ""
	channelType := channelTypeUnknown
	if dm {
		channelType = channelTypeDM
	}

	return p.store.WithTransaction(ctx, func(q database.Querier) error {
		if err := p.writeUser(ctx, q, userFields{
			id:            e.Author.ID,
			username:      e.Author.Username,
			discriminator: e.Author.Discriminator,
			globalName:    e.Author.GlobalName,
			avatarURL:     e.Author.AvatarURL,
			bot:           e.Author.Bot,
		}); err != nil {
			return err
		}

		if err := p.ensureChannel(ctx, q, e.ChannelID, e.GuildID, channelType); err != nil {
			return err
		}

		var ref sql.NullString
		if e.ReferencedMessage != nil && e.ReferencedMessage.MessageID != e.ID {
			ok, err := exists(ctx, q, "messages", e.ReferencedMessage.MessageID)
			if err != nil {
				return err
			}
			if ok {
				ref = nullString(e.ReferencedMessage.MessageID)
			}
		}

		if err := database.Upsert(ctx, q, "messages", []string{"id"}, database.Row{
			{Column: "id", Value: e.ID},
			{Column: "channel_id", Value: e.ChannelID},
			{Column: "author_id", Value: e.Author.ID},
			{Column: "content", Value: e.Content},
			{Column: "timestamp", Value: ts},
			{Column: "edited_timestamp", Value: edited},
			{Column: "referenced_message_id", Value: ref},
		}); err != nil {
			return err
		}

		if err := replaceAttachments(ctx, q, e.ID, e.Attachments); err != nil {
			return err
		}

		if err := replaceEmbeds(ctx, q, e.ID, e.Embeds); err != nil {
			return err
		}

		if dm {
			return p.trackDM(ctx, q, e)
		}
		return nil
	})
}

func replaceAttachments(ctx context.Context, q database.Querier, messageID string, attachments []events.Attachment) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM attachments WHERE message_id = ?", messageID); err != nil {
		return fmt.Errorf("delete attachments: %w", err)
	}

	for _, a := range attachments {
		if err := database.Upsert(ctx, q, "attachments", []string{"id"}, database.Row{
			{Column: "id", Value: a.ID},
			{Column: "message_id", Value: messageID},
			{Column: "filename", Value: a.Filename},
			{Column: "url", Value: a.URL},
			{Column: "content_type", Value: nullString(a.ContentType)},
			{Column: "size", Value: a.Size},
		}); err != nil {
			return err
		}
	}

	return nil
}

func replaceEmbeds(ctx context.Context, q database.Querier, messageID string, embeds []events.Embed) error {
	if _, err := q.ExecContext(ctx,
		"DELETE FROM embed_fields WHERE embed_id IN (SELECT id FROM embeds WHERE message_id = ?)", messageID); err != nil {
		return fmt.Errorf("delete embed fields: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM embeds WHERE message_id = ?", messageID); err != nil {
		return fmt.Errorf("delete embeds: %w", err)
	}

	for _, em := range embeds {
		var ts sql.NullInt64
		if em.Timestamp != 0 {
			ts = sql.NullInt64{Int64: em.Timestamp, Valid: true}
		}

		var embedID int64
		err := q.QueryRowContext(ctx,
			"INSERT INTO embeds (message_id, title, description, url, color, timestamp) "+
				"VALUES (?, ?, ?, ?, ?, ?) RETURNING id",
			messageID,
			nullString(em.Title),
			nullString(em.Description),
			nullString(em.URL),
			em.Color,
			ts,
		).Scan(&embedID)
		if err != nil {
			return fmt.Errorf("insert embed: %w", err)
		}

		for i, f := range em.Fields {
			if _, err := q.ExecContext(ctx,
				"INSERT INTO embed_fields (embed_id, name, value, is_inline, position) VALUES (?, ?, ?, ?, ?)",
				embedID, f.Name, f.Value, f.Inline, i,
			); err != nil {
				return fmt.Errorf("insert embed field: %w", err)
			}
		}
	}

	return nil
}

// trackDM records the message as the latest in its direct message channel.
// The counterpart is the author, unless the identified bot wrote the message,
// in which case it is the recipient or the user already mapped to the channel.
func (p *Persister) trackDM(ctx context.Context, q database.Querier, e *events.Message) error {
	counterpart := e.Author.ID
	if p.fromBot(e.Author) {
		counterpart = ""
		if e.Recipient != nil {
			counterpart = e.Recipient.ID
		} else {
			err := q.QueryRowContext(ctx, "SELECT user_id FROM dm_channels WHERE id = ?", e.ChannelID).Scan(&counterpart)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("lookup dm channel: %w", err)
			}
		}
	}

	if counterpart == "" {
		p.log.Printf("no known recipient for dm channel %s, skipping dm bookkeeping", e.ChannelID)
		return nil
	}

	if err := p.ensureUser(ctx, q, counterpart, ""); err != nil {
		return err
	}

	return database.Upsert(ctx, q, "dm_channels", []string{"id"}, database.Row{
		{Column: "id", Value: e.ChannelID},
		{Column: "user_id", Value: counterpart},
		{Column: "last_message_id", Value: e.ID},
	})
}

func (p *Persister) messageDelete(ctx context.Context, e *events.MessageDelete) error {
	if _, err := p.store.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", e.MessageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
