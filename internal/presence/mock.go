package presence

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockFeed struct {
	mock.Mock
}

func (m *MockFeed) Snapshot(ctx context.Context) ([]GuildSnapshot, error) {
	args := m.Called(ctx)
	snaps, _ := args.Get(0).([]GuildSnapshot)
	return snaps, args.Error(1)
}
