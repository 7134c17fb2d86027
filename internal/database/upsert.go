package database

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Field is one column/value pair of a row being written.
type Field struct {
	Column string
	Value  any
}

type Row []Field

func (r Row) columns() []string {
	cols := make([]string, len(r))
	for i, f := range r {
		cols[i] = f.Column
	}
	return cols
}

func (r Row) values() []any {
	vals := make([]any, len(r))
	for i, f := range r {
		vals[i] = f.Value
	}
	return vals
}

// Upsert inserts row into table and, when a row with the same key columns
// already exists, overwrites every non-key column with the new values.
func Upsert(ctx context.Context, q Querier, table string, keyColumns []string, row Row) error {
	query, err := buildInsert(table, keyColumns, row, true)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, query, row.values()...); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}

	return nil
}

// InsertIgnore inserts row unless a row with the same key columns exists.
// It reports whether a row was written.
func InsertIgnore(ctx context.Context, q Querier, table string, keyColumns []string, row Row) (bool, error) {
	query, err := buildInsert(table, keyColumns, row, false)
	if err != nil {
		return false, err
	}

	res, err := q.ExecContext(ctx, query, row.values()...)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", table, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return n > 0, nil
}

func buildInsert(table string, keyColumns []string, row Row, update bool) (string, error) {
	if len(row) == 0 {
		return "", fmt.Errorf("insert %s: no columns", table)
	}
	if len(keyColumns) == 0 {
		return "", fmt.Errorf("insert %s: no key columns", table)
	}

	cols := row.columns()
	for _, k := range keyColumns {
		if !slices.Contains(cols, k) {
			return "", fmt.Errorf("insert %s: key column %q missing from row", table, k)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		table,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
		strings.Join(keyColumns, ", "),
	)

	var sets []string
	if update {
		for _, c := range cols {
			if !slices.Contains(keyColumns, c) {
				sets = append(sets, c+" = excluded."+c)
			}
		}
	}

	if len(sets) == 0 {
		b.WriteString("DO NOTHING")
	} else {
		b.WriteString("DO UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}

	return b.String(), nil
}

// Update overwrites the non-key columns of row on the existing row matching
// its key columns. It returns the number of rows changed.
func Update(ctx context.Context, q Querier, table string, keyColumns []string, row Row) (int64, error) {
	var (
		sets  []string
		where []string
		args  []any
		keys  []any
	)
	for _, f := range row {
		if slices.Contains(keyColumns, f.Column) {
			where = append(where, f.Column+" = ?")
			keys = append(keys, f.Value)
			continue
		}
		sets = append(sets, f.Column+" = ?")
		args = append(args, f.Value)
	}
	if len(where) != len(keyColumns) {
		return 0, fmt.Errorf("update %s: key columns missing from row", table)
	}
	if len(sets) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), strings.Join(where, " AND "))
	res, err := q.ExecContext(ctx, query, append(args, keys...)...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}

	return res.RowsAffected()
}
