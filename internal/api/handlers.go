package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/server"
)

var validate = validator.New()

type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

type SendMessageResponse struct {
	Message   *events.Message `json:"message"`
	Delivered int             `json:"delivered"`
}

type RefreshResponse struct {
	Delivered int `json:"delivered"`
}

type StatusResponse struct {
	Sessions int   `json:"sessions"`
	Users    int64 `json:"users"`
	Guilds   int64 `json:"guilds"`
	Channels int64 `json:"channels"`
	Messages int64 `json:"messages"`
}

func (s *RelayApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *RelayApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *RelayApp) status(w http.ResponseWriter, r *http.Request) {
	counts, err := database.CountRows(r.Context(), s.store)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, StatusResponse{
		Sessions: s.registry.Len(),
		Users:    counts.Users,
		Guilds:   counts.Guilds,
		Channels: counts.Channels,
		Messages: counts.Messages,
	})
}

func (s *RelayApp) decodeMessageRequest(w http.ResponseWriter, r *http.Request) (SendMessageRequest, bool) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return req, false
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			err = errors.New(verrs[0].Field() + " failed " + verrs[0].Tag())
		}
		errResp := NewValidationError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return req, false
	}

	return req, true
}

// sendChannelMessage posts a message through the bot and relays it to the
// channel's subscribers.
func (s *RelayApp) sendChannelMessage(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelId")
	if channelID == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req, ok := s.decodeMessageRequest(w, r)
	if !ok {
		return
	}

	msg, err := s.sender.SendChannelMessage(r.Context(), channelID, req.Content)
	if err != nil {
		s.log.Printf("send channel message: %v", err)
		errResp := NewBadGatewayError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	n := s.relay.BroadcastToChannel(r.Context(), channelID, msg)
	s.writeJson(w, http.StatusCreated, SendMessageResponse{Message: msg, Delivered: n})
}

func (s *RelayApp) sendDirectMessage(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req, ok := s.decodeMessageRequest(w, r)
	if !ok {
		return
	}

	msg, err := s.sender.SendDirectMessage(r.Context(), userID, req.Content)
	if err != nil {
		s.log.Printf("send direct message: %v", err)
		errResp := NewBadGatewayError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	n := s.relay.BroadcastToDm(r.Context(), userID, msg)
	s.writeJson(w, http.StatusCreated, SendMessageResponse{Message: msg, Delivered: n})
}

// refreshDMs tells every session to reload its direct message list.
func (s *RelayApp) refreshDMs(w http.ResponseWriter, r *http.Request) {
	n := s.relay.BroadcastAll(r.Context(), &events.RefreshDMList{})
	s.writeJson(w, http.StatusAccepted, RefreshResponse{Delivered: n})
}

func (s *RelayApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.registry, s.log)
	if _, err := s.registry.Connect(client); err != nil {
		s.log.Println("register session:", err)
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
