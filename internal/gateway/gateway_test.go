package gateway

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/npezzotti/guild-relay/internal/events"
	"github.com/npezzotti/guild-relay/internal/presence"
	"github.com/npezzotti/guild-relay/internal/stats"
	"github.com/npezzotti/guild-relay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type relayed struct {
	scope string
	id    string
	ev    events.Event
}

type recordingRelay struct {
	mu    sync.Mutex
	calls []relayed
}

func (r *recordingRelay) record(scope, id string, ev events.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, relayed{scope: scope, id: id, ev: ev})
	return 1
}

func (r *recordingRelay) BroadcastAll(_ context.Context, ev events.Event) int {
	return r.record("all", "", ev)
}

func (r *recordingRelay) BroadcastToChannel(_ context.Context, id string, ev events.Event) int {
	return r.record("channel", id, ev)
}

func (r *recordingRelay) BroadcastToDm(_ context.Context, id string, ev events.Event) int {
	return r.record("dm", id, ev)
}

func (r *recordingRelay) BroadcastToGuild(_ context.Context, id string, ev events.Event) int {
	return r.record("guild", id, ev)
}

func (r *recordingRelay) last(t *testing.T) relayed {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.calls, "expected an event to be relayed")
	return r.calls[len(r.calls)-1]
}

type recordingTracker struct {
	rebuilds int
	seeded   map[string]string
	observed []presence.Member
	guilds   []string
}

func (t *recordingTracker) Rebuild(context.Context) error {
	t.rebuilds++
	return nil
}

func (t *recordingTracker) Observe(_ context.Context, guildID, guildName string, m presence.Member) bool {
	t.observed = append(t.observed, m)
	t.guilds = append(t.guilds, guildID+"/"+guildName)
	return true
}

func (t *recordingTracker) Seed(userID, status string) {
	t.seeded[userID] = status
}

func newTestGateway(t *testing.T) (*Gateway, *recordingRelay, *recordingTracker) {
	s := &discordgo.Session{State: discordgo.NewState(), StateEnabled: true}
	s.State.User = &discordgo.User{ID: "bot", Username: "relay-bot", Bot: true}

	g := newGateway(s, testutil.TestLogger(t))
	relay := &recordingRelay{}
	tracker := &recordingTracker{seeded: make(map[string]string)}
	g.Attach(relay, tracker)
	return g, relay, tracker
}

func TestChannelTypeName(t *testing.T) {
	tcases := []struct {
		in   discordgo.ChannelType
		want string
	}{
		{discordgo.ChannelTypeGuildText, "GUILD_TEXT"},
		{discordgo.ChannelTypeDM, "DM"},
		{discordgo.ChannelTypeGuildVoice, "GUILD_VOICE"},
		{discordgo.ChannelTypeGuildCategory, "GUILD_CATEGORY"},
		{discordgo.ChannelTypeGuildForum, "GUILD_FORUM"},
		{discordgo.ChannelType(250), "UNKNOWN"},
	}

	for _, tc := range tcases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, channelTypeName(tc.in))
		})
	}
}

func TestMessageEvent(t *testing.T) {
	sent := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	edited := sent.Add(time.Minute)

	m := &discordgo.Message{
		ID:              "m1",
		ChannelID:       "c1",
		GuildID:         "g1",
		Content:         "hello",
		Timestamp:       sent,
		EditedTimestamp: &edited,
		Author:          &discordgo.User{ID: "u1", Username: "alice"},
		MessageReference: &discordgo.MessageReference{
			MessageID: "m0",
		},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", Filename: "cat.png", URL: "https://cdn/cat.png", ContentType: "image/png", Size: 42},
		},
		Embeds: []*discordgo.MessageEmbed{{
			Title:     "title",
			Color:     0xff0000,
			Timestamp: sent.Format(time.RFC3339),
			Fields:    []*discordgo.MessageEmbedField{{Name: "k", Value: "v", Inline: true}},
		}},
	}

	ev := messageEvent(events.KindMessageReceived, m)
	require.NotNil(t, ev)

	assert.Equal(t, events.KindMessageReceived, ev.Kind())
	assert.Equal(t, "m1", ev.ID)
	assert.Equal(t, "g1", ev.GuildID)
	assert.Equal(t, sent.UnixMilli(), ev.Timestamp)
	require.NotNil(t, ev.EditedTimestamp)
	assert.Equal(t, edited.UnixMilli(), *ev.EditedTimestamp)
	assert.Equal(t, &events.MessageRef{MessageID: "m0"}, ev.ReferencedMessage)
	assert.Equal(t, "alice", ev.Author.Username)
	assert.Equal(t, []events.Attachment{
		{ID: "a1", Filename: "cat.png", URL: "https://cdn/cat.png", ContentType: "image/png", Size: 42},
	}, ev.Attachments)
	require.Len(t, ev.Embeds, 1)
	assert.Equal(t, sent.UnixMilli(), ev.Embeds[0].Timestamp)
	assert.Equal(t, []events.EmbedField{{Name: "k", Value: "v", Inline: true}}, ev.Embeds[0].Fields)
	assert.NoError(t, events.Validate(ev))

	assert.Nil(t, messageEvent(events.KindMessageUpdate, &discordgo.Message{ID: "m1"}), "expected partial update without author to be dropped")
}

func TestRoleChanges(t *testing.T) {
	added, removed := roleChanges([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"c"}, added)
	assert.Equal(t, []string{"a"}, removed)
}

func TestOnMessageCreate(t *testing.T) {
	g, relay, _ := newTestGateway(t)

	t.Run("guild message goes to its channel", func(t *testing.T) {
		g.onMessageCreate(g.session, &discordgo.MessageCreate{Message: &discordgo.Message{
			ID: "m1", ChannelID: "c1", GuildID: "g1", Author: &discordgo.User{ID: "u1"},
		}})

		last := relay.last(t)
		assert.Equal(t, "channel", last.scope)
		assert.Equal(t, "c1", last.id)
		assert.Equal(t, events.KindMessageReceived, last.ev.Kind())
	})
	t.Run("direct message goes to the author's dm topic", func(t *testing.T) {
		g.onMessageCreate(g.session, &discordgo.MessageCreate{Message: &discordgo.Message{
			ID: "m2", ChannelID: "dm1", Author: &discordgo.User{ID: "u2"},
		}})

		last := relay.last(t)
		assert.Equal(t, "dm", last.scope)
		assert.Equal(t, "u2", last.id)
	})
	t.Run("own messages are skipped", func(t *testing.T) {
		n := len(relay.calls)
		g.onMessageCreate(g.session, &discordgo.MessageCreate{Message: &discordgo.Message{
			ID: "m3", ChannelID: "c1", GuildID: "g1", Author: &discordgo.User{ID: "bot", Bot: true},
		}})
		assert.Len(t, relay.calls, n)
	})
}

func TestOnMessageDelete(t *testing.T) {
	g, relay, _ := newTestGateway(t)
	require.NoError(t, g.session.State.ChannelAdd(&discordgo.Channel{
		ID:         "dm1",
		Type:       discordgo.ChannelTypeDM,
		Recipients: []*discordgo.User{{ID: "u1"}},
	}))

	g.onMessageDelete(g.session, &discordgo.MessageDelete{Message: &discordgo.Message{ID: "m1", ChannelID: "dm1"}})
	last := relay.last(t)
	assert.Equal(t, "dm", last.scope)
	assert.Equal(t, "u1", last.id)
	assert.Equal(t, &events.MessageDelete{MessageID: "m1", ChannelID: "dm1"}, last.ev)

	g.onMessageDelete(g.session, &discordgo.MessageDelete{Message: &discordgo.Message{ID: "m2", ChannelID: "unknown"}})
	assert.Equal(t, "all", relay.last(t).scope, "expected unknown dm counterpart to reach every session")
}

func TestOnGuildCreate(t *testing.T) {
	g, relay, tracker := newTestGateway(t)

	g.onReady(g.session, &discordgo.Ready{
		User:   &discordgo.User{ID: "bot", Username: "relay-bot"},
		Guilds: []*discordgo.Guild{{ID: "g1", Unavailable: true}},
	})
	assert.Equal(t, 1, tracker.rebuilds)
	bot, ok := relay.last(t).ev.(*events.UserUpdate)
	require.True(t, ok)
	assert.True(t, bot.Bot)

	g.onGuildCreate(g.session, &discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID:        "g1",
		Name:      "First",
		Presences: []*discordgo.Presence{{User: &discordgo.User{ID: "u1"}, Status: discordgo.StatusIdle}},
	}})
	assert.Equal(t, events.KindGuildReady, relay.last(t).ev.Kind())
	assert.Equal(t, "idle", tracker.seeded["u1"])

	g.onGuildCreate(g.session, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g2", Name: "Second"}})
	assert.Equal(t, events.KindGuildJoin, relay.last(t).ev.Kind())
	assert.Equal(t, "all", relay.last(t).scope)

	g.onGuildCreate(g.session, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g1", Name: "First"}})
	assert.Equal(t, events.KindGuildJoin, relay.last(t).ev.Kind(), "expected later creates of the same guild to be joins")
}

func TestOnGuildMemberUpdate(t *testing.T) {
	g, relay, _ := newTestGateway(t)
	require.NoError(t, g.session.State.GuildAdd(&discordgo.Guild{
		ID:    "g1",
		Roles: []*discordgo.Role{{ID: "r2", Name: "mods", Color: 7}},
	}))

	g.onGuildMemberUpdate(g.session, &discordgo.GuildMemberUpdate{
		Member:       &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}, Roles: []string{"r2"}},
		BeforeUpdate: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}, Roles: []string{"r1"}},
	})

	require.Len(t, relay.calls, 2)
	add := relay.calls[0].ev.(*events.GuildMemberRoles)
	assert.Equal(t, events.KindGuildMemberRoleAdd, add.Kind())
	assert.Equal(t, []events.RoleRef{{ID: "r2", Name: "mods", Color: 7}}, add.Roles)
	remove := relay.calls[1].ev.(*events.GuildMemberRoles)
	assert.Equal(t, events.KindGuildMemberRoleRem, remove.Kind())
	assert.Equal(t, []events.RoleRef{{ID: "r1"}}, remove.Roles)
	assert.Equal(t, "guild", relay.calls[0].scope)
	assert.Equal(t, "g1", relay.calls[0].id)
}

func TestOnPresenceUpdate(t *testing.T) {
	g, _, tracker := newTestGateway(t)
	require.NoError(t, g.session.State.GuildAdd(&discordgo.Guild{ID: "g1", Name: "Guild"}))

	g.onPresenceUpdate(g.session, &discordgo.PresenceUpdate{
		GuildID:  "g1",
		Presence: discordgo.Presence{User: &discordgo.User{ID: "u1", Username: "alice"}, Status: discordgo.StatusDoNotDisturb},
	})

	require.Len(t, tracker.observed, 1)
	assert.Equal(t, presence.Member{UserID: "u1", UserName: "alice", Status: "dnd"}, tracker.observed[0])
	assert.Equal(t, []string{"g1/Guild"}, tracker.guilds)
}

func TestSnapshot(t *testing.T) {
	g, _, _ := newTestGateway(t)
	require.NoError(t, g.session.State.GuildAdd(&discordgo.Guild{
		ID:   "g1",
		Name: "Guild",
		Members: []*discordgo.Member{
			{GuildID: "g1", User: &discordgo.User{ID: "u1", Username: "alice"}},
			{GuildID: "g1", User: &discordgo.User{ID: "u2", Username: "bob"}},
		},
		Presences: []*discordgo.Presence{
			{User: &discordgo.User{ID: "u1"}, Status: discordgo.StatusOnline},
		},
	}))

	snaps, err := g.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "Guild", snaps[0].GuildName)
	assert.ElementsMatch(t, []presence.Member{
		{UserID: "u1", UserName: "alice", Status: "online"},
		{UserID: "u2", UserName: "bob", Status: "offline"},
	}, snaps[0].Members)
}

func TestOpenRequiresAttach(t *testing.T) {
	g := newGateway(&discordgo.Session{State: discordgo.NewState()}, testutil.TestLogger(t))
	assert.ErrorContains(t, g.Open(), "before Attach")
}

func (r *recordingRelay) ofKind(kind events.Kind) []relayed {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []relayed
	for _, c := range r.calls {
		if c.ev.Kind() == kind {
			out = append(out, c)
		}
	}
	return out
}

func TestOnGuildCreate_seedsEveryMember(t *testing.T) {
	s := &discordgo.Session{State: discordgo.NewState(), StateEnabled: true}
	s.State.User = &discordgo.User{ID: "bot", Username: "relay-bot", Bot: true}
	g := newGateway(s, testutil.TestLogger(t))

	st := &stats.MockStatsUpdater{}
	st.On("RegisterMetric", mock.Anything).Return()
	st.On("Incr", mock.Anything).Return().Maybe()

	relay := &recordingRelay{}
	reconciler := presence.NewReconciler(g, relay, testutil.TestLogger(t), st)
	g.Attach(relay, reconciler)

	g.onReady(s, &discordgo.Ready{
		User:   &discordgo.User{ID: "bot", Username: "relay-bot"},
		Guilds: []*discordgo.Guild{{ID: "g1", Unavailable: true}},
	})

	guild := &discordgo.Guild{
		ID:   "g1",
		Name: "Guild",
		Members: []*discordgo.Member{
			{GuildID: "g1", User: &discordgo.User{ID: "u1", Username: "alice"}},
			{GuildID: "g1", User: &discordgo.User{ID: "u2", Username: "bob"}},
			{GuildID: "g1", User: &discordgo.User{ID: "u3", Username: "carol"}},
		},
		Presences: []*discordgo.Presence{
			{User: &discordgo.User{ID: "u1"}, Status: discordgo.StatusOnline},
		},
	}
	// the state handler stores the guild before ours runs
	require.NoError(t, s.State.GuildAdd(guild))
	g.onGuildCreate(s, &discordgo.GuildCreate{Guild: guild})

	for id, want := range map[string]string{"u1": "online", "u2": "offline", "u3": "offline"} {
		status, ok := reconciler.Status(id)
		require.True(t, ok, "expected %s to be cached", id)
		assert.Equal(t, want, status, id)
	}

	require.NoError(t, reconciler.Poll(context.Background()))
	assert.Empty(t, relay.ofKind(events.KindUserUpdateStatus), "expected no status change on the first poll")
}

func TestOnGuildCreate_mirrorsChannelsAndRoles(t *testing.T) {
	g, relay, _ := newTestGateway(t)

	g.onGuildCreate(g.session, &discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID:   "g1",
		Name: "Guild",
		Channels: []*discordgo.Channel{
			{ID: "c1", Name: "general", Type: discordgo.ChannelTypeGuildText, ParentID: "cat"},
			{ID: "cat", Name: "Text", Type: discordgo.ChannelTypeGuildCategory},
		},
		Roles: []*discordgo.Role{{ID: "r1", Name: "mods", Color: 7}},
	}})

	require.Len(t, relay.calls, 4)
	assert.Equal(t, events.KindGuildJoin, relay.calls[0].ev.Kind(), "expected the guild before its children")

	channels := relay.ofKind(events.KindChannelCreate)
	require.Len(t, channels, 2)
	first := channels[0].ev.(*events.Channel)
	second := channels[1].ev.(*events.Channel)
	assert.Equal(t, "cat", first.ChannelID, "expected categories first")
	assert.Equal(t, "GUILD_CATEGORY", first.ChannelType)
	assert.Equal(t, "c1", second.ChannelID)
	assert.Equal(t, "g1", second.GuildID)
	assert.Equal(t, "cat", second.ParentID)
	assert.Equal(t, "guild", channels[0].scope)
	assert.Equal(t, "g1", channels[0].id)

	roles := relay.ofKind(events.KindRoleCreate)
	require.Len(t, roles, 1)
	assert.Equal(t, &events.Role{
		Type:      events.KindRoleCreate,
		RoleID:    "r1",
		GuildID:   "g1",
		RoleName:  "mods",
		RoleColor: 7,
	}, roles[0].ev)
}

// fakeDiscord answers REST calls by method and path suffix.
type fakeDiscord struct {
	mu     sync.Mutex
	routes map[string]string
	calls  []string
}

func (f *fakeDiscord) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Method+" "+req.URL.Path)

	status, body := http.StatusNotFound, `{"message":"Unknown Channel","code":10003}`
	for route, resp := range f.routes {
		method, suffix, _ := strings.Cut(route, " ")
		if req.Method == method && strings.HasSuffix(req.URL.Path, suffix) {
			status, body = http.StatusOK, resp
			break
		}
	}

	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func newRestGateway(t *testing.T, routes map[string]string) (*Gateway, *fakeDiscord) {
	fake := &fakeDiscord{routes: routes}
	s := &discordgo.Session{
		State:        discordgo.NewState(),
		StateEnabled: true,
		Client:       &http.Client{Transport: fake},
		Ratelimiter:  discordgo.NewRatelimiter(),
	}
	s.State.User = &discordgo.User{ID: "bot", Username: "relay-bot", Bot: true}
	return newGateway(s, testutil.TestLogger(t)), fake
}

func TestSendChannelMessage(t *testing.T) {
	sent := func(channelID string) string {
		return `{"id":"m1","channel_id":"` + channelID + `","content":"hello","author":{"id":"bot","username":"relay-bot","bot":true}}`
	}

	t.Run("guild from state", func(t *testing.T) {
		g, fake := newRestGateway(t, map[string]string{"POST /channels/c1/messages": sent("c1")})
		require.NoError(t, g.session.State.GuildAdd(&discordgo.Guild{
			ID:       "g1",
			Channels: []*discordgo.Channel{{ID: "c1", GuildID: "g1", Type: discordgo.ChannelTypeGuildText}},
		}))

		ev, err := g.SendChannelMessage(context.Background(), "c1", "hello")
		require.NoError(t, err)
		assert.Equal(t, "g1", ev.GuildID)
		assert.Equal(t, "c1", ev.ChannelID)
		assert.Equal(t, events.KindMessageReceived, ev.Kind())
		assert.Len(t, fake.calls, 1, "expected no channel lookup for a cached channel")
	})

	t.Run("guild from rest", func(t *testing.T) {
		g, _ := newRestGateway(t, map[string]string{
			"POST /channels/c2/messages": sent("c2"),
			"GET /channels/c2":           `{"id":"c2","guild_id":"g2","type":0}`,
		})

		ev, err := g.SendChannelMessage(context.Background(), "c2", "hello")
		require.NoError(t, err)
		assert.Equal(t, "g2", ev.GuildID)
	})

	t.Run("send fails", func(t *testing.T) {
		g, _ := newRestGateway(t, nil)

		_, err := g.SendChannelMessage(context.Background(), "c3", "hello")
		assert.Error(t, err)
	})
}

func TestSendDirectMessage(t *testing.T) {
	g, _ := newRestGateway(t, map[string]string{
		"POST /users/@me/channels":    `{"id":"dm1","type":1,"recipients":[{"id":"u1"}]}`,
		"POST /channels/dm1/messages": `{"id":"m2","channel_id":"dm1","content":"hi","author":{"id":"bot","bot":true}}`,
	})

	ev, err := g.SendDirectMessage(context.Background(), "u1", "hi")
	require.NoError(t, err)
	assert.Empty(t, ev.GuildID)
	assert.Equal(t, &events.Recipient{ID: "u1"}, ev.Recipient)
	assert.Equal(t, "dm1", ev.ChannelID)
}
