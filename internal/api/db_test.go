package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/persist"
	"github.com/npezzotti/guild-relay/internal/server"
	"github.com/npezzotti/guild-relay/internal/stats"
	"github.com/npezzotti/guild-relay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newStoreApp wires the app to a sqlite store through a real persister.
func newStoreApp(t *testing.T) *RelayApp {
	st := &stats.MockStatsUpdater{}
	st.On("RegisterMetric", mock.Anything).Return()
	st.On("Incr", mock.Anything).Return().Maybe()
	st.On("Decr", mock.Anything).Return().Maybe()

	logger := testutil.TestLogger(t)
	store := testutil.NewTestStore(t)
	registry := server.NewRegistry(logger, persist.NewPersister(store, logger, st), st, server.Options{})
	t.Cleanup(func() { registry.Shutdown(context.Background()) })

	return NewRelayApp(http.NewServeMux(), logger, registry, store, &mockSender{}, testConfig(t))
}

func serveAuthed(t *testing.T, app *RelayApp, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := app.createJwtForSession(dashboardSubject, defaultJwtExpiration)
	require.NoError(t, err)

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.AddCookie(createJwtCookie(token, defaultJwtExpiration))

	rr := httptest.NewRecorder()
	app.mux.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func Test_dbWriteThenRead(t *testing.T) {
	app := newStoreApp(t)

	writes := []struct {
		path string
		body string
	}{
		{path: "/api/db/guilds", body: `{"id":"g1","name":"Guild","memberCount":2}`},
		{path: "/api/db/channels", body: `{"channelId":"c1","guildId":"g1","channelName":"general","channelType":"GUILD_TEXT","position":1}`},
		{path: "/api/db/users", body: `{"id":"u1","username":"alice","globalName":"Alice"}`},
		{path: "/api/db/messages", body: `{"id":"m1","channelId":"c1","guildId":"g1","content":"hi","timestamp":1700000000000.0,` +
			`"author":{"id":"u1","username":"alice"},"attachments":[{"id":"a1","filename":"f.png","url":"http://f","size":3}]}`},
		{path: "/api/db/messages", body: `{"id":"m2","channelId":"c1","guildId":"g1","content":"later","timestamp":1700000001000,` +
			`"author":{"id":"u1","username":"alice"}}`},
	}
	for _, w := range writes {
		rr := serveAuthed(t, app, http.MethodPost, w.path, w.body)
		require.Equal(t, http.StatusCreated, rr.Code, "%s: %s", w.path, rr.Body.String())
	}

	t.Run("guilds", func(t *testing.T) {
		rr := serveAuthed(t, app, http.MethodGet, "/api/db/guilds", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []database.Guild{{ID: "g1", Name: "Guild", MemberCount: 2}}, decodeBody[[]database.Guild](t, rr))
	})
	t.Run("channels", func(t *testing.T) {
		rr := serveAuthed(t, app, http.MethodGet, "/api/db/channels/g1", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []database.Channel{{ID: "c1", GuildID: "g1", Name: "general", Type: "GUILD_TEXT", Position: 1}},
			decodeBody[[]database.Channel](t, rr))
	})
	t.Run("messages", func(t *testing.T) {
		rr := serveAuthed(t, app, http.MethodGet, "/api/db/messages/c1", "")
		require.Equal(t, http.StatusOK, rr.Code)

		msgs := decodeBody[[]database.Message](t, rr)
		require.Len(t, msgs, 2)
		assert.Equal(t, "m1", msgs[0].ID, "expected oldest first")
		assert.Equal(t, "alice", msgs[0].Author.Username)
		assert.Equal(t, "Alice", msgs[0].Author.GlobalName)
		assert.True(t, time.UnixMilli(1700000000000).Equal(msgs[0].SentAt))
		assert.Equal(t, []database.Attachment{{ID: "a1", Filename: "f.png", URL: "http://f", Size: 3}}, msgs[0].Attachments)
		assert.Empty(t, msgs[1].Attachments)
	})
	t.Run("messages limit", func(t *testing.T) {
		rr := serveAuthed(t, app, http.MethodGet, "/api/db/messages/c1?limit=1", "")
		require.Equal(t, http.StatusOK, rr.Code)

		msgs := decodeBody[[]database.Message](t, rr)
		require.Len(t, msgs, 1)
		assert.Equal(t, "m2", msgs[0].ID, "expected the latest message")
	})
	t.Run("status", func(t *testing.T) {
		rr := serveAuthed(t, app, http.MethodPatch, "/api/db/users/u1/status", `{"newStatus":"idle"}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "idle", decodeBody[database.User](t, rr).Status)

		rr = serveAuthed(t, app, http.MethodGet, "/api/db/users", "")
		require.Equal(t, http.StatusOK, rr.Code)
		users := decodeBody[[]database.User](t, rr)
		require.Len(t, users, 1)
		assert.Equal(t, database.User{ID: "u1", Username: "alice", GlobalName: "Alice", Status: "idle"}, users[0])
	})
}

func Test_dbReadErrors(t *testing.T) {
	app := newStoreApp(t)

	tcases := []struct {
		name       string
		path       string
		statusCode int
	}{
		{name: "unknown guild", path: "/api/db/channels/nope", statusCode: http.StatusNotFound},
		{name: "unknown channel", path: "/api/db/messages/nope", statusCode: http.StatusNotFound},
		{name: "zero limit", path: "/api/db/messages/c1?limit=0", statusCode: http.StatusBadRequest},
		{name: "limit too large", path: "/api/db/messages/c1?limit=500", statusCode: http.StatusBadRequest},
		{name: "limit not a number", path: "/api/db/messages/c1?limit=ten", statusCode: http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serveAuthed(t, app, http.MethodGet, tc.path, "")
			assert.Equal(t, tc.statusCode, rr.Code)
			assert.Equal(t, tc.statusCode, decodeBody[ApiError](t, rr).StatusCode)
		})
	}
}

func Test_dbWriteValidation(t *testing.T) {
	app := newStoreApp(t)

	tcases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "channel without type", method: http.MethodPost, path: "/api/db/channels", body: `{"channelId":"c1"}`},
		{name: "guild without name", method: http.MethodPost, path: "/api/db/guilds", body: `{"id":"g1"}`},
		{name: "message without author", method: http.MethodPost, path: "/api/db/messages", body: `{"id":"m1","channelId":"c1"}`},
		{name: "fractional timestamp", method: http.MethodPost, path: "/api/db/messages",
			body: `{"id":"m1","channelId":"c1","timestamp":1.5,"author":{"id":"u1"}}`},
		{name: "malformed user", method: http.MethodPost, path: "/api/db/users", body: `{"id":`},
		{name: "unknown status", method: http.MethodPatch, path: "/api/db/users/u1/status", body: `{"newStatus":"asleep"}`},
		{name: "missing status", method: http.MethodPatch, path: "/api/db/users/u1/status", body: `{}`},
		{name: "null status body", method: http.MethodPatch, path: "/api/db/users/u1/status", body: `null`},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serveAuthed(t, app, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}

	counts, err := database.CountRows(t.Context(), app.store)
	require.NoError(t, err)
	assert.Equal(t, database.TableCounts{}, counts, "expected rejected writes to leave the store empty")
}

func Test_dbPublishScopes(t *testing.T) {
	tcases := []struct {
		name   string
		body   string
		handle func(*RelayApp) http.HandlerFunc
		topic  server.Topic
		id     string
	}{
		{name: "guild channel", body: `{"channelId":"c1","guildId":"g1","channelType":"GUILD_TEXT"}`,
			handle: func(a *RelayApp) http.HandlerFunc { return a.createChannel }, topic: server.TopicGuild, id: "g1"},
		{name: "guild message", body: `{"id":"m1","channelId":"c1","guildId":"g1","author":{"id":"u1"}}`,
			handle: func(a *RelayApp) http.HandlerFunc { return a.createMessage }, topic: server.TopicChannel, id: "c1"},
		{name: "direct message", body: `{"id":"m1","channelId":"dm1","author":{"id":"bot"},"recipient":{"id":"u2"}}`,
			handle: func(a *RelayApp) http.HandlerFunc { return a.createMessage }, topic: server.TopicDM, id: "u2"},
		{name: "user", body: `{"id":"u1","username":"alice"}`,
			handle: func(a *RelayApp) http.HandlerFunc { return a.createUser }},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, _, relay := newMessageApp(t)
			relay.On("Publish", mock.Anything, tc.topic, tc.id, mock.Anything).Return(2, nil).Once()

			rr := httptest.NewRecorder()
			tc.handle(app)(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)))

			require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
			assert.Equal(t, 2, decodeBody[struct {
				Delivered int `json:"delivered"`
			}](t, rr).Delivered)
			relay.AssertExpectations(t)
		})
	}

	t.Run("not persisted", func(t *testing.T) {
		app, _, relay := newMessageApp(t)
		relay.On("Publish", mock.Anything, server.Topic(""), "", mock.AnythingOfType("*events.Guild")).
			Return(0, server.ErrNotPersisted).Once()

		rr := httptest.NewRecorder()
		app.createGuild(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"g1","name":"Guild"}`)))

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		relay.AssertExpectations(t)
	})
}

// The path id wins over a userId in the body. The mocked relay stores
// nothing, so the read back misses.
func Test_dbStatusUsesPathID(t *testing.T) {
	app, _, relay := newMessageApp(t)
	app.store = testutil.NewTestStore(t)
	want := &events.UserStatusUpdate{UserID: "u9", NewStatus: "dnd"}
	relay.On("Publish", mock.Anything, server.Topic(""), "", want).Return(1, nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/api/db/users/u9/status", strings.NewReader(`{"newStatus":"dnd","userId":"other"}`))
	req.SetPathValue("id", "u9")
	rr := httptest.NewRecorder()
	app.updateUserStatus(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	relay.AssertExpectations(t)
}
