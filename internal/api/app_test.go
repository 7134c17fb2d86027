package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/npezzotti/guild-relay/internal/config"
	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/server"
	"github.com/npezzotti/guild-relay/internal/stats"
	"github.com/npezzotti/guild-relay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "hunter2"

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendChannelMessage(ctx context.Context, channelID, content string) (*events.Message, error) {
	args := m.Called(ctx, channelID, content)
	msg, _ := args.Get(0).(*events.Message)
	return msg, args.Error(1)
}

func (m *mockSender) SendDirectMessage(ctx context.Context, userID, content string) (*events.Message, error) {
	args := m.Called(ctx, userID, content)
	msg, _ := args.Get(0).(*events.Message)
	return msg, args.Error(1)
}

type mockRelay struct {
	mock.Mock
}

func (m *mockRelay) BroadcastAll(ctx context.Context, ev events.Event) int {
	return m.Called(ctx, ev).Int(0)
}

func (m *mockRelay) BroadcastToChannel(ctx context.Context, channelID string, ev events.Event) int {
	return m.Called(ctx, channelID, ev).Int(0)
}

func (m *mockRelay) BroadcastToDm(ctx context.Context, userID string, ev events.Event) int {
	return m.Called(ctx, userID, ev).Int(0)
}

func (m *mockRelay) Publish(ctx context.Context, topic server.Topic, id string, ev events.Event) (int, error) {
	args := m.Called(ctx, topic, id, ev)
	return args.Int(0), args.Error(1)
}

type nopPersister struct{}

func (nopPersister) Process(context.Context, events.Event) bool { return true }

func newTestRegistry(t *testing.T) *server.Registry {
	st := &stats.MockStatsUpdater{}
	st.On("RegisterMetric", mock.Anything).Return()
	st.On("Incr", mock.Anything).Return().Maybe()
	st.On("Decr", mock.Anything).Return().Maybe()

	r := server.NewRegistry(testutil.TestLogger(t), nopPersister{}, st, server.Options{})
	t.Cleanup(func() { r.Shutdown(context.Background()) })
	return r
}

func testConfig(t *testing.T) *config.Config {
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	return &config.Config{
		ServerAddr:            "localhost:8080",
		DatabaseDSN:           "dsn",
		SigningKey:            []byte("test-signing-key"),
		DashboardPasswordHash: hash,
		AllowedOrigins:        []string{"http://localhost:3000"},
	}
}

func newTestApp(t *testing.T, store database.Store) *RelayApp {
	return NewRelayApp(http.NewServeMux(), testutil.TestLogger(t), newTestRegistry(t), store, &mockSender{}, testConfig(t))
}

func TestNewRelayApp(t *testing.T) {
	mux := http.NewServeMux()
	logger := testutil.TestLogger(t)
	registry := newTestRegistry(t)
	store := &database.MockStore{}
	sender := &mockSender{}
	cfg := testConfig(t)

	app := NewRelayApp(mux, logger, registry, store, sender, cfg)

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.mux, "expected mux to be initialized")
	assert.Equal(t, app.log, logger, "expected logger to be set")
	assert.Equal(t, app.store, store, "expected store to be set")
	assert.Equal(t, app.registry, registry, "expected registry to be set")
	assert.Equal(t, app.relay, registry.Broadcaster(), "expected relay to be the registry's broadcaster")
	assert.Equal(t, app.signingKey, cfg.SigningKey, "expected signing key to be set")
	assert.Equal(t, app.mux.Addr, cfg.ServerAddr, "expected server address to match config")
}
