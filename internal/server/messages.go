package server

import (
	"encoding/json"
	"time"

	"github.com/npezzotti/guild-relay/internal/events"
)

// Control message types sent by websocket clients.
const (
	Identify           = "IDENTIFY"
	SubscribeDM        = "SUBSCRIBE_DM"
	SubscribeChannel   = "SUBSCRIBE_CHANNEL"
	SubscribeGuild     = "SUBSCRIBE_GUILD"
	UnsubscribeDM      = "UNSUBSCRIBE_DM"
	UnsubscribeChannel = "UNSUBSCRIBE_CHANNEL"
	UnsubscribeGuild   = "UNSUBSCRIBE_GUILD"
	Typing             = "TYPING"
	Ping               = "PING"
)

// Reply types sent by the server outside of relayed events.
const (
	welcomeType = "WELCOME"
	ackType     = "ACK"
	pongType    = "PONG"
)

// ClientMessage is a control frame. Older clients put channelId or guildId
// at the top level instead of inside data.
type ClientMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	ChannelID string          `json:"channelId,omitempty"`
	GuildID   string          `json:"guildId,omitempty"`
}

type identifyData struct {
	BotID string `json:"botId"`
}

type subscribeData struct {
	UserID    string `json:"userId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	GuildID   string `json:"guildId,omitempty"`
}

type typingData struct {
	ChannelID string `json:"channelId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

type pingData struct {
	Timestamp int64 `json:"timestamp"`
}

type Welcome struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type Ack struct {
	Action    string `json:"action"`
	ID        string `json:"id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type Pong struct {
	Timestamp  int64 `json:"timestamp"`
	ServerTime int64 `json:"serverTime"`
}

func serverMessage(msgType string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	b, err := json.Marshal(events.Envelope{Type: events.Kind(msgType), Data: raw})
	if err != nil {
		return nil
	}
	return b
}

func WelcomeMessage(sessionID string) []byte {
	return serverMessage(welcomeType, Welcome{
		Message:   "Connection established",
		SessionID: sessionID,
	})
}

func AckMessage(action, id string) []byte {
	return serverMessage(ackType, Ack{
		Action:    action,
		ID:        id,
		Status:    "success",
		Timestamp: Now().UnixMilli(),
	})
}

func PongMessage(clientTimestamp int64) []byte {
	return serverMessage(pongType, Pong{
		Timestamp:  clientTimestamp,
		ServerTime: Now().UnixMilli(),
	})
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
