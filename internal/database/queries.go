package database

import (
	"context"
	"fmt"
	"time"
)

const (
	deleteExpiredTypingQuery = "DELETE FROM typing_indicators WHERE timestamp < ?"
	countRowsQuery           = "SELECT " +
		"(SELECT COUNT(*) FROM users), " +
		"(SELECT COUNT(*) FROM guilds), " +
		"(SELECT COUNT(*) FROM channels), " +
		"(SELECT COUNT(*) FROM messages)"
)

// DeleteTypingBefore removes typing indicators last refreshed before cutoff
// and returns the number of rows removed.
func DeleteTypingBefore(ctx context.Context, q Querier, cutoff time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, deleteExpiredTypingQuery, ToMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete typing indicators: %w", err)
	}

	return res.RowsAffected()
}

func CountRows(ctx context.Context, q Querier) (TableCounts, error) {
	var c TableCounts
	err := q.QueryRowContext(ctx, countRowsQuery).Scan(
		&c.Users,
		&c.Guilds,
		&c.Channels,
		&c.Messages,
	)
	if err != nil {
		return TableCounts{}, fmt.Errorf("count rows: %w", err)
	}

	return c, nil
}
