package events

// Kind names an event type. Kinds double as the envelope type sent to
// websocket sessions.
type Kind string

const (
	KindUserUpdate         Kind = "USER_UPDATE"
	KindUserUpdateStatus   Kind = "USER_UPDATE_STATUS"
	KindGuildJoin          Kind = "GUILD_JOIN"
	KindGuildUpdate        Kind = "GUILD_UPDATE"
	KindGuildReady         Kind = "GUILD_READY"
	KindGuildLeave         Kind = "GUILD_LEAVE"
	KindGuildMemberJoin    Kind = "GUILD_MEMBER_JOIN"
	KindGuildMemberLeave   Kind = "GUILD_MEMBER_LEAVE"
	KindGuildMemberRoleAdd Kind = "GUILD_MEMBER_ROLE_ADD"
	KindGuildMemberRoleRem Kind = "GUILD_MEMBER_ROLE_REMOVE"
	KindChannelCreate      Kind = "CHANNEL_CREATE"
	KindChannelUpdate      Kind = "CHANNEL_UPDATE"
	KindChannelDelete      Kind = "CHANNEL_DELETE"
	KindRoleCreate         Kind = "ROLE_CREATE"
	KindRoleUpdate         Kind = "ROLE_UPDATE"
	KindRoleDelete         Kind = "ROLE_DELETE"
	KindMessageReceived    Kind = "MESSAGE_RECEIVED"
	KindMessageUpdate      Kind = "MESSAGE_UPDATE"
	KindMessageDelete      Kind = "MESSAGE_DELETE"
	KindReactionAdd        Kind = "MESSAGE_REACTION_ADD"
	KindReactionRemove     Kind = "MESSAGE_REACTION_REMOVE"
	KindTypingStart        Kind = "TYPING_START"
	KindRefreshDMList      Kind = "REFRESH_DM_LIST"
)
