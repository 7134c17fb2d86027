package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/guild-relay/internal/config"
	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/server"
)

// MessageSender posts messages to Discord on behalf of the bot.
type MessageSender interface {
	SendChannelMessage(ctx context.Context, channelID, content string) (*events.Message, error)
	SendDirectMessage(ctx context.Context, userID, content string) (*events.Message, error)
}

// Relay is the part of the broadcaster the REST layer feeds.
type Relay interface {
	BroadcastAll(ctx context.Context, ev events.Event) int
	BroadcastToChannel(ctx context.Context, channelID string, ev events.Event) int
	BroadcastToDm(ctx context.Context, userID string, ev events.Event) int
	Publish(ctx context.Context, topic server.Topic, id string, ev events.Event) (int, error)
}

type RelayApp struct {
	log            *log.Logger
	store          database.Store
	registry       *server.Registry
	relay          Relay
	sender         MessageSender
	mux            *http.Server
	signingKey     []byte
	passwordHash   []byte
	allowedOrigins []string
}

func NewRelayApp(mux *http.ServeMux, logger *log.Logger, registry *server.Registry, store database.Store, sender MessageSender, cfg *config.Config) *RelayApp {
	s := &RelayApp{
		log:            logger,
		store:          store,
		registry:       registry,
		sender:         sender,
		signingKey:     cfg.SigningKey,
		passwordHash:   cfg.DashboardPasswordHash,
		allowedOrigins: cfg.AllowedOrigins,
	}
	if registry != nil {
		s.relay = registry.Broadcaster()
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/status", s.authMiddleware(s.status))
	mux.Handle("POST /api/channels/{channelId}/messages", s.authMiddleware(s.sendChannelMessage))
	mux.Handle("POST /api/dms/{userId}/messages", s.authMiddleware(s.sendDirectMessage))
	mux.Handle("POST /api/events/refresh-dms", s.authMiddleware(s.refreshDMs))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	mux.Handle("GET /api/db/users", s.authMiddleware(s.listUsers))
	mux.Handle("GET /api/db/guilds", s.authMiddleware(s.listGuilds))
	mux.Handle("GET /api/db/channels/{guildId}", s.authMiddleware(s.listChannels))
	mux.Handle("GET /api/db/messages/{channelId}", s.authMiddleware(s.listMessages))
	mux.Handle("POST /api/db/users", s.authMiddleware(s.createUser))
	mux.Handle("POST /api/db/guilds", s.authMiddleware(s.createGuild))
	mux.Handle("POST /api/db/channels", s.authMiddleware(s.createChannel))
	mux.Handle("POST /api/db/messages", s.authMiddleware(s.createMessage))
	mux.Handle("PATCH /api/db/users/{id}/status", s.authMiddleware(s.updateUserStatus))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *RelayApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *RelayApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
