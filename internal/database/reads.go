package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
)

// DefaultMessageLimit bounds MessagesByChannel when no limit is given.
const DefaultMessageLimit = 50

const (
	userColumns = "u.id, u.username, u.discriminator, u.global_name, u.avatar_url, u.is_bot, u.is_owner, u.status"

	listUsersQuery = "SELECT " + userColumns + " FROM users u ORDER BY u.username, u.id"
	getUserQuery   = "SELECT " + userColumns + " FROM users u WHERE u.id = ?"

	listGuildsQuery  = "SELECT id, name, icon_url, owner_id, member_count, description FROM guilds ORDER BY name, id"
	guildExistsQuery = "SELECT EXISTS (SELECT 1 FROM guilds WHERE id = ?)"

	channelsByGuildQuery = "SELECT id, guild_id, parent_id, name, type, topic, position, is_nsfw " +
		"FROM channels WHERE guild_id = ? ORDER BY position, name, id"
	channelExistsQuery = "SELECT EXISTS (SELECT 1 FROM channels WHERE id = ?)"

	messagesByChannelQuery = "SELECT m.id, m.channel_id, m.content, m.timestamp, m.edited_timestamp, m.referenced_message_id, " +
		userColumns + " FROM messages m JOIN users u ON u.id = m.author_id " +
		"WHERE m.channel_id = ? ORDER BY m.timestamp DESC, m.id DESC LIMIT ?"
	attachmentsByChannelQuery = "SELECT a.id, a.message_id, a.filename, a.url, a.content_type, a.size " +
		"FROM attachments a JOIN messages m ON m.id = a.message_id WHERE m.channel_id = ? ORDER BY a.id"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner, extra ...any) (User, error) {
	var (
		u                                 User
		discriminator, globalName, avatar sql.NullString
	)
	dest := append(extra, &u.ID, &u.Username, &discriminator, &globalName, &avatar, &u.IsBot, &u.IsOwner, &u.Status)
	if err := row.Scan(dest...); err != nil {
		return User{}, err
	}
	u.Discriminator = discriminator.String
	u.GlobalName = globalName.String
	u.AvatarURL = avatar.String
	return u, nil
}

func ListUsers(ctx context.Context, q Querier) ([]User, error) {
	rows, err := q.QueryContext(ctx, listUsersQuery)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func GetUser(ctx context.Context, q Querier, id string) (User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, getUserQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}

	return u, nil
}

func ListGuilds(ctx context.Context, q Querier) ([]Guild, error) {
	rows, err := q.QueryContext(ctx, listGuildsQuery)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	defer rows.Close()

	guilds := []Guild{}
	for rows.Next() {
		var (
			g                        Guild
			icon, owner, description sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.Name, &icon, &owner, &g.MemberCount, &description); err != nil {
			return nil, fmt.Errorf("scan guild: %w", err)
		}
		g.IconURL = icon.String
		g.OwnerID = owner.String
		g.Description = description.String
		guilds = append(guilds, g)
	}

	return guilds, rows.Err()
}

// ChannelsByGuild returns the guild's channels ordered by position. It
// returns ErrNotFound if the guild is not stored.
func ChannelsByGuild(ctx context.Context, q Querier, guildID string) ([]Channel, error) {
	if err := exists(ctx, q, guildExistsQuery, guildID); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, channelsByGuildQuery, guildID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	channels := []Channel{}
	for rows.Next() {
		var (
			c                    Channel
			guild, parent, topic sql.NullString
		)
		if err := rows.Scan(&c.ID, &guild, &parent, &c.Name, &c.Type, &topic, &c.Position, &c.NSFW); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		c.GuildID = guild.String
		c.ParentID = parent.String
		c.Topic = topic.String
		channels = append(channels, c)
	}

	return channels, rows.Err()
}

// MessagesByChannel returns the latest limit messages of a channel, oldest
// first, with their authors and attachments. It returns ErrNotFound if the
// channel is not stored.
func MessagesByChannel(ctx context.Context, q Querier, channelID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if err := exists(ctx, q, channelExistsQuery, channelID); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, messagesByChannelQuery, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	index := make(map[string]int)
	for rows.Next() {
		var (
			m            Message
			content, ref sql.NullString
			edited       sql.NullInt64
		)
		m.Author, err = scanUser(rows, &m.ID, &m.ChannelID, &content, &m.Timestamp, &edited, &ref)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Content = content.String
		m.ReferencedMessageID = ref.String
		m.SentAt = FromMillis(m.Timestamp)
		if edited.Valid {
			m.EditedTimestamp = &edited.Int64
		}
		m.Attachments = []Attachment{}
		index[m.ID] = len(messages)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := attachAll(ctx, q, channelID, messages, index); err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	return messages, nil
}

func attachAll(ctx context.Context, q Querier, channelID string, messages []Message, index map[string]int) error {
	if len(messages) == 0 {
		return nil
	}

	rows, err := q.QueryContext(ctx, attachmentsByChannelQuery, channelID)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a           Attachment
			messageID   string
			contentType sql.NullString
		)
		if err := rows.Scan(&a.ID, &messageID, &a.Filename, &a.URL, &contentType, &a.Size); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		i, ok := index[messageID]
		if !ok {
			continue
		}
		a.ContentType = contentType.String
		messages[i].Attachments = append(messages[i].Attachments, a)
	}

	return rows.Err()
}

func exists(ctx context.Context, q Querier, query, id string) error {
	var found bool
	if err := q.QueryRowContext(ctx, query, id).Scan(&found); err != nil {
		return fmt.Errorf("lookup %s: %w", id, err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}
