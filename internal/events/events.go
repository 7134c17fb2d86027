package events

import "encoding/json"

// Event is one typed notification flowing from the gateway feed or the REST
// layer to the store and to subscribed sessions.
type Event interface {
	Kind() Kind
}

type UserUpdate struct {
	ID            string `json:"id,omitempty" validate:"required_without=UserID"`
	UserID        string `json:"userId,omitempty"`
	Username      string `json:"username,omitempty"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"globalName,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	Bot           bool   `json:"bot"`
}

func (*UserUpdate) Kind() Kind { return KindUserUpdate }

// Key returns the user id, accepting either payload spelling.
func (e *UserUpdate) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.UserID
}

type UserStatusUpdate struct {
	UserID    string `json:"userId" validate:"required"`
	UserName  string `json:"userName,omitempty"`
	OldStatus string `json:"oldStatus,omitempty"`
	NewStatus string `json:"newStatus" validate:"required"`
	GuildID   string `json:"guildId,omitempty"`
	GuildName string `json:"guildName,omitempty"`
	IsOwner   *bool  `json:"isOwner,omitempty"`
}

func (*UserStatusUpdate) Kind() Kind { return KindUserUpdateStatus }

// Guild carries GUILD_JOIN, GUILD_UPDATE and GUILD_READY.
type Guild struct {
	Type        Kind   `json:"-"`
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	IconURL     string `json:"iconUrl,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`
	MemberCount int    `json:"memberCount"`
	Description string `json:"description,omitempty"`
}

func (e *Guild) Kind() Kind { return e.Type }

type Member struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	JoinedAt int64  `json:"joinedAt,omitempty"`
	Bot      bool   `json:"bot,omitempty"`
}

type GuildMemberJoin struct {
	GuildID  string  `json:"guildId" validate:"required"`
	Member   *Member `json:"member,omitempty" validate:"required_without=UserID"`
	UserID   string  `json:"userId,omitempty"`
	JoinTime int64   `json:"joinTime,omitempty"`
}

func (*GuildMemberJoin) Kind() Kind { return KindGuildMemberJoin }

func (e *GuildMemberJoin) MemberID() string {
	if e.Member != nil && e.Member.ID != "" {
		return e.Member.ID
	}
	return e.UserID
}

type GuildMemberLeave struct {
	GuildID string `json:"guildId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

func (*GuildMemberLeave) Kind() Kind { return KindGuildMemberLeave }

type RoleRef struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name,omitempty"`
	Color int    `json:"color"`
}

// GuildMemberRoles carries GUILD_MEMBER_ROLE_ADD and GUILD_MEMBER_ROLE_REMOVE.
type GuildMemberRoles struct {
	Type    Kind      `json:"-"`
	GuildID string    `json:"guildId" validate:"required"`
	UserID  string    `json:"userId" validate:"required"`
	Roles   []RoleRef `json:"roles" validate:"required,min=1,dive"`
}

func (e *GuildMemberRoles) Kind() Kind { return e.Type }

// Channel carries CHANNEL_CREATE and CHANNEL_UPDATE.
type Channel struct {
	Type        Kind   `json:"-"`
	ChannelID   string `json:"channelId" validate:"required"`
	GuildID     string `json:"guildId,omitempty"`
	ChannelName string `json:"channelName,omitempty"`
	ChannelType string `json:"channelType" validate:"required"`
	Topic       string `json:"topic,omitempty"`
	ParentID    string `json:"parentId,omitempty"`
	Position    int    `json:"position"`
	NSFW        bool   `json:"nsfw"`
}

func (e *Channel) Kind() Kind { return e.Type }

type ChannelDelete struct {
	ChannelID string `json:"channelId" validate:"required"`
	GuildID   string `json:"guildId,omitempty"`
}

func (*ChannelDelete) Kind() Kind { return KindChannelDelete }

// Role carries ROLE_CREATE and ROLE_UPDATE.
type Role struct {
	Type         Kind   `json:"-"`
	RoleID       string `json:"roleId" validate:"required"`
	GuildID      string `json:"guildId" validate:"required"`
	RoleName     string `json:"roleName,omitempty"`
	RoleColor    int    `json:"roleColor"`
	RolePosition int    `json:"rolePosition"`
	Permissions  int64  `json:"permissions"`
	Mentionable  bool   `json:"mentionable"`
	Hoisted      bool   `json:"hoisted"`
}

func (e *Role) Kind() Kind { return e.Type }

type RoleDelete struct {
	RoleID  string `json:"roleId" validate:"required"`
	GuildID string `json:"guildId,omitempty"`
}

func (*RoleDelete) Kind() Kind { return KindRoleDelete }

type Author struct {
	ID            string `json:"id" validate:"required"`
	Username      string `json:"username,omitempty"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"globalName,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	Bot           bool   `json:"bot"`
}

type Attachment struct {
	ID          string `json:"id" validate:"required"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   int64        `json:"timestamp,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type MessageRef struct {
	MessageID string `json:"messageId" validate:"required"`
}

type Recipient struct {
	ID string `json:"id" validate:"required"`
}

// Message carries MESSAGE_RECEIVED and MESSAGE_UPDATE. Timestamps are epoch
// milliseconds; a zero Timestamp means "now".
type Message struct {
	Type              Kind         `json:"-"`
	ID                string       `json:"id" validate:"required"`
	ChannelID         string       `json:"channelId" validate:"required"`
	GuildID           string       `json:"guildId,omitempty"`
	Content           string       `json:"content"`
	Timestamp         int64        `json:"timestamp,omitempty"`
	EditedTimestamp   *int64       `json:"editedTimestamp,omitempty"`
	ReferencedMessage *MessageRef  `json:"referencedMessage,omitempty"`
	Author            *Author      `json:"author" validate:"required"`
	Attachments       []Attachment `json:"attachments,omitempty" validate:"dive"`
	Embeds            []Embed      `json:"embeds,omitempty"`
	Recipient         *Recipient   `json:"recipient,omitempty"`
}

func (e *Message) Kind() Kind { return e.Type }

type MessageDelete struct {
	MessageID string `json:"messageId" validate:"required"`
	ChannelID string `json:"channelId,omitempty"`
}

func (*MessageDelete) Kind() Kind { return KindMessageDelete }

// Reaction carries MESSAGE_REACTION_ADD and MESSAGE_REACTION_REMOVE.
type Reaction struct {
	Type      Kind   `json:"-"`
	MessageID string `json:"messageId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
	ChannelID string `json:"channelId,omitempty"`
}

func (e *Reaction) Kind() Kind { return e.Type }

// TypingStart records UserID typing in ChannelID. Without a channel, the
// direct message channel shared with RecipientID is used.
type TypingStart struct {
	UserID      string `json:"userId" validate:"required"`
	ChannelID   string `json:"channelId,omitempty" validate:"required_without=RecipientID"`
	RecipientID string `json:"recipientId,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

func (*TypingStart) Kind() Kind { return KindTypingStart }

type RefreshDMList struct{}

func (*RefreshDMList) Kind() Kind { return KindRefreshDMList }

// Passthrough is any event whose kind has no typed variant. It is relayed
// as-is and never persisted.
type Passthrough struct {
	Type Kind
	Data json.RawMessage
}

func (e *Passthrough) Kind() Kind { return e.Type }

// NewPassthrough builds a Passthrough event from an arbitrary payload.
func NewPassthrough(kind Kind, data any) (*Passthrough, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Passthrough{Type: kind, Data: raw}, nil
}
