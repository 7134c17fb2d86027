package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Envelope is the {type, data} frame exchanged with websocket sessions.
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var constructors = map[Kind]func() Event{
	KindUserUpdate:         func() Event { return &UserUpdate{} },
	KindUserUpdateStatus:   func() Event { return &UserStatusUpdate{} },
	KindGuildJoin:          func() Event { return &Guild{Type: KindGuildJoin} },
	KindGuildUpdate:        func() Event { return &Guild{Type: KindGuildUpdate} },
	KindGuildReady:         func() Event { return &Guild{Type: KindGuildReady} },
	KindGuildMemberJoin:    func() Event { return &GuildMemberJoin{} },
	KindGuildMemberLeave:   func() Event { return &GuildMemberLeave{} },
	KindGuildMemberRoleAdd: func() Event { return &GuildMemberRoles{Type: KindGuildMemberRoleAdd} },
	KindGuildMemberRoleRem: func() Event { return &GuildMemberRoles{Type: KindGuildMemberRoleRem} },
	KindChannelCreate:      func() Event { return &Channel{Type: KindChannelCreate} },
	KindChannelUpdate:      func() Event { return &Channel{Type: KindChannelUpdate} },
	KindChannelDelete:      func() Event { return &ChannelDelete{} },
	KindRoleCreate:         func() Event { return &Role{Type: KindRoleCreate} },
	KindRoleUpdate:         func() Event { return &Role{Type: KindRoleUpdate} },
	KindRoleDelete:         func() Event { return &RoleDelete{} },
	KindMessageReceived:    func() Event { return &Message{Type: KindMessageReceived} },
	KindMessageUpdate:      func() Event { return &Message{Type: KindMessageUpdate} },
	KindMessageDelete:      func() Event { return &MessageDelete{} },
	KindReactionAdd:        func() Event { return &Reaction{Type: KindReactionAdd} },
	KindReactionRemove:     func() Event { return &Reaction{Type: KindReactionRemove} },
	KindTypingStart:        func() Event { return &TypingStart{} },
	KindRefreshDMList:      func() Event { return &RefreshDMList{} },
}

// Decode parses data into the typed variant for kind and validates it.
// Integer fields accept integral values in fraction or exponent form.
// Kinds without a variant decode to a *Passthrough.
func Decode(kind Kind, data json.RawMessage) (Event, error) {
	newEvent, ok := constructors[kind]
	if !ok {
		return &Passthrough{Type: kind, Data: data}, nil
	}

	ev := newEvent()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(integralNumbers(data), ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
	}

	if err := Validate(ev); err != nil {
		return nil, fmt.Errorf("validate %s: %w", kind, err)
	}

	return ev, nil
}

func Validate(ev Event) error {
	switch e := ev.(type) {
	case *Passthrough, *RefreshDMList:
		return nil
	default:
		return validate.Struct(e)
	}
}

// Encode serializes ev as a {type, data} frame.
func Encode(ev Event) ([]byte, error) {
	env := Envelope{Type: ev.Kind()}
	if p, ok := ev.(*Passthrough); ok {
		env.Data = p.Data
	} else {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
		}
		env.Data = data
	}

	return json.Marshal(env)
}
