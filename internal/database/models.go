package database

import "time"

// TableCounts is a snapshot of row counts for the mirrored entities.
type TableCounts struct {
	Users    int64 `json:"users"`
	Guilds   int64 `json:"guilds"`
	Channels int64 `json:"channels"`
	Messages int64 `json:"messages"`
}

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"globalName,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	IsBot         bool   `json:"isBot"`
	IsOwner       bool   `json:"isOwner"`
	Status        string `json:"status"`
}

type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IconURL     string `json:"iconUrl,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`
	MemberCount int    `json:"memberCount"`
	Description string `json:"description,omitempty"`
}

type Channel struct {
	ID       string `json:"id"`
	GuildID  string `json:"guildId,omitempty"`
	ParentID string `json:"parentId,omitempty"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Topic    string `json:"topic,omitempty"`
	Position int    `json:"position"`
	NSFW     bool   `json:"nsfw"`
}

type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}

// Message is a stored message joined with its author and attachments.
type Message struct {
	ID                  string       `json:"id"`
	ChannelID           string       `json:"channelId"`
	Content             string       `json:"content"`
	Timestamp           int64        `json:"timestamp"`
	SentAt              time.Time    `json:"sentAt"`
	EditedTimestamp     *int64       `json:"editedTimestamp,omitempty"`
	ReferencedMessageID string       `json:"referencedMessageId,omitempty"`
	Author              User         `json:"author"`
	Attachments         []Attachment `json:"attachments"`
}

// ToMillis converts t to the epoch millisecond form stored in BIGINT columns.
func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis is the inverse of ToMillis.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
