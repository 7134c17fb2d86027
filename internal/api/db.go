package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/server"
)

const (
	maxEventBody    = 1 << 20
	maxMessageLimit = 100
)

var presenceStatuses = []string{"online", "idle", "dnd", "offline", "invisible"}

type PublishResponse struct {
	Event     events.Event `json:"event"`
	Delivered int          `json:"delivered"`
}

func (s *RelayApp) writeError(w http.ResponseWriter, err *ApiError) {
	s.writeJson(w, err.StatusCode, err)
}

// storeError maps a database read failure to its response.
func (s *RelayApp) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, NewNotFoundError())
		return
	}

	s.log.Printf("%s: %v", op, err)
	s.writeError(w, NewInternalServerError(err))
}

func (s *RelayApp) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := database.ListUsers(r.Context(), s.store)
	if err != nil {
		s.storeError(w, "list users", err)
		return
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *RelayApp) listGuilds(w http.ResponseWriter, r *http.Request) {
	guilds, err := database.ListGuilds(r.Context(), s.store)
	if err != nil {
		s.storeError(w, "list guilds", err)
		return
	}

	s.writeJson(w, http.StatusOK, guilds)
}

func (s *RelayApp) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := database.ChannelsByGuild(r.Context(), s.store, r.PathValue("guildId"))
	if err != nil {
		s.storeError(w, "list channels", err)
		return
	}

	s.writeJson(w, http.StatusOK, channels)
}

// listMessages returns the latest messages of a channel, oldest first. The
// limit query parameter caps the page size.
func (s *RelayApp) listMessages(w http.ResponseWriter, r *http.Request) {
	limit := database.DefaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxMessageLimit {
			s.writeError(w, NewValidationError(errors.New("limit must be between 1 and "+strconv.Itoa(maxMessageLimit))))
			return
		}
		limit = n
	}

	messages, err := database.MessagesByChannel(r.Context(), s.store, r.PathValue("channelId"), limit)
	if err != nil {
		s.storeError(w, "list messages", err)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

// readEvent decodes the request body as an event of kind.
func (s *RelayApp) readEvent(w http.ResponseWriter, r *http.Request, kind events.Kind) (events.Event, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return nil, false
	}

	ev, err := events.Decode(kind, body)
	if err != nil {
		s.writeError(w, NewValidationError(err))
		return nil, false
	}

	return ev, true
}

// publish stores ev and relays it to the sessions in scope.
func (s *RelayApp) publish(w http.ResponseWriter, r *http.Request, topic server.Topic, id string, ev events.Event) {
	n, err := s.relay.Publish(r.Context(), topic, id, ev)
	if err != nil {
		s.log.Printf("publish %s: %v", ev.Kind(), err)
		s.writeError(w, NewUnprocessableError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, PublishResponse{Event: ev, Delivered: n})
}

func (s *RelayApp) createUser(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.readEvent(w, r, events.KindUserUpdate)
	if !ok {
		return
	}

	s.publish(w, r, "", "", ev)
}

func (s *RelayApp) createGuild(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.readEvent(w, r, events.KindGuildJoin)
	if !ok {
		return
	}

	s.publish(w, r, "", "", ev)
}

func (s *RelayApp) createChannel(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.readEvent(w, r, events.KindChannelCreate)
	if !ok {
		return
	}

	if guildID := ev.(*events.Channel).GuildID; guildID != "" {
		s.publish(w, r, server.TopicGuild, guildID, ev)
		return
	}
	s.publish(w, r, "", "", ev)
}

func (s *RelayApp) createMessage(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.readEvent(w, r, events.KindMessageReceived)
	if !ok {
		return
	}

	msg := ev.(*events.Message)
	if msg.GuildID == "" && msg.Recipient != nil {
		s.publish(w, r, server.TopicDM, msg.Recipient.ID, ev)
		return
	}
	s.publish(w, r, server.TopicChannel, msg.ChannelID, ev)
}

// updateUserStatus applies a presence change for the user in the path and
// returns the stored user.
func (s *RelayApp) updateUserStatus(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&body); err != nil || body == nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	userID := r.PathValue("id")
	id, _ := json.Marshal(userID)
	body["userId"] = id
	raw, err := json.Marshal(body)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	ev, err := events.Decode(events.KindUserUpdateStatus, raw)
	if err != nil {
		s.writeError(w, NewValidationError(err))
		return
	}

	status := ev.(*events.UserStatusUpdate)
	if !slices.Contains(presenceStatuses, strings.ToLower(status.NewStatus)) {
		s.writeError(w, NewValidationError(errors.New("newStatus must be one of "+strings.Join(presenceStatuses, ", "))))
		return
	}

	if _, err := s.relay.Publish(r.Context(), "", "", ev); err != nil {
		s.log.Printf("publish %s: %v", ev.Kind(), err)
		s.writeError(w, NewUnprocessableError(err))
		return
	}

	user, err := database.GetUser(r.Context(), s.store, userID)
	if err != nil {
		s.storeError(w, "get user", err)
		return
	}

	s.writeJson(w, http.StatusOK, user)
}
