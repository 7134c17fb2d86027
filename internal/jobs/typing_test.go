package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/stats"
	"github.com/npezzotti/guild-relay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func seedTyping(t *testing.T, store database.Store, userID, channelID string, at time.Time) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, database.Upsert(ctx, store, "users", []string{"id"}, database.Row{
		{Column: "id", Value: userID},
		{Column: "username", Value: userID},
	}))
	require.NoError(t, database.Upsert(ctx, store, "channels", []string{"id"}, database.Row{
		{Column: "id", Value: channelID},
		{Column: "name", Value: channelID},
		{Column: "type", Value: "GUILD_TEXT"},
	}))
	require.NoError(t, database.Upsert(ctx, store, "typing_indicators", []string{"user_id", "channel_id"}, database.Row{
		{Column: "user_id", Value: userID},
		{Column: "channel_id", Value: channelID},
		{Column: "timestamp", Value: database.ToMillis(at)},
	}))
}

func typingRows(t *testing.T, store database.Store) int {
	t.Helper()
	var n int
	require.NoError(t, store.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM typing_indicators").Scan(&n))
	return n
}

func TestTypingSweeper_Sweep(t *testing.T) {
	store := testutil.NewTestStore(t)
	st := &stats.MockStatsUpdater{}
	st.On("RegisterMetric", stats.TypingSwept).Return()
	st.On("Add", stats.TypingSwept, float64(1)).Return().Once()

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	seedTyping(t, store, "u1", "c1", start)

	sweeper := NewTypingSweeper(store, testutil.TestLogger(t), st, 10*time.Second)

	sweeper.now = func() time.Time { return start.Add(9 * time.Second) }
	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, 1, typingRows(t, store), "expected indicator to survive before the TTL")

	sweeper.now = func() time.Time { return start.Add(11 * time.Second) }
	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, 0, typingRows(t, store), "expected indicator to expire after the TTL")

	st.AssertExpectations(t)
}

func TestTypingSweeper_refreshKeepsIndicator(t *testing.T) {
	store := testutil.NewTestStore(t)
	st := &stats.MockStatsUpdater{}
	st.On("RegisterMetric", mock.Anything).Return()

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	seedTyping(t, store, "u1", "c1", start)
	seedTyping(t, store, "u1", "c1", start.Add(5*time.Second))

	sweeper := NewTypingSweeper(store, testutil.TestLogger(t), st, 10*time.Second)
	sweeper.now = func() time.Time { return start.Add(11 * time.Second) }

	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, 1, typingRows(t, store))
	st.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

type sessionCount int

func (n sessionCount) Len() int { return int(n) }

func TestStatusReporter_Report(t *testing.T) {
	store := testutil.NewTestStore(t)
	seedTyping(t, store, "u1", "c1", time.Now())

	r := NewStatusReporter(store, sessionCount(2), testutil.TestLogger(t))
	assert.NoError(t, r.Report(context.Background()))

	store.Close()
	assert.Error(t, r.Report(context.Background()), "expected an error from a closed store")
}
