package database

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	a := m.Called(ctx, query, args)
	if res, ok := a.Get(0).(sql.Result); ok {
		return res, a.Error(1)
	}
	return nil, a.Error(1)
}
func (m *MockStore) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	a := m.Called(ctx, query, args)
	if rows, ok := a.Get(0).(*sql.Rows); ok {
		return rows, a.Error(1)
	}
	return nil, a.Error(1)
}
func (m *MockStore) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	a := m.Called(ctx, query, args)
	if row, ok := a.Get(0).(*sql.Row); ok {
		return row
	}
	return nil
}
func (m *MockStore) WithTransaction(ctx context.Context, fn func(q Querier) error) error {
	a := m.Called(ctx, fn)
	return a.Error(0)
}
func (m *MockStore) Ping(ctx context.Context) error {
	a := m.Called(ctx)
	return a.Error(0)
}
func (m *MockStore) Dialect() Dialect {
	a := m.Called()
	return a.Get(0).(Dialect)
}
func (m *MockStore) Close() error {
	a := m.Called()
	return a.Error(0)
}
