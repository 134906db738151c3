package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"countries/pkg/domain"
)

// Select reads rows of a mapped table or view into new entities. where is an
// optional condition using "?" markers; it may carry ORDER BY.
func (s *Store) Select(ctx context.Context, ex Executor, m *domain.Mapping, where string, args ...any) ([]domain.Entity, error) {
	fields := m.ScalarFields()
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoteAll(m.Columns()), ", "), Quote(m.Table))
	if where = strings.TrimSpace(where); where != "" {
		if !hasClausePrefix(where) {
			q += " WHERE"
		}
		q += " " + where
	}
	rows, err := ex.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", m.Table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Entity
	for rows.Next() {
		values := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", m.Table, err)
		}
		e := m.New()
		for i, f := range fields {
			if err := f.Set(e, values[i]); err != nil {
				return nil, fmt.Errorf("scan %s.%s: %w", m.Table, f.Column, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", m.Table, err)
	}
	return out, nil
}

func hasClausePrefix(where string) bool {
	upper := strings.ToUpper(where)
	for _, p := range []string{"WHERE ", "ORDER BY ", "LIMIT "} {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}

// SelectLinks returns the right-hand keys of a join table grouped by left key,
// restricted to the given left keys.
func (s *Store) SelectLinks(ctx context.Context, ex Executor, link *domain.Link, leftKeys []any) (map[string][]any, error) {
	out := make(map[string][]any)
	if len(leftKeys) == 0 {
		return out, nil
	}
	q := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s) ORDER BY %s, %s",
		Quote(link.LeftKey), Quote(link.RightKey), Quote(link.JoinTable),
		Quote(link.LeftKey), s.placeholders(1, len(leftKeys)),
		Quote(link.LeftKey), Quote(link.RightKey))
	rows, err := ex.QueryContext(ctx, q, leftKeys...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", link.JoinTable, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var left, right any
		if err := rows.Scan(&left, &right); err != nil {
			return nil, fmt.Errorf("scan %s: %w", link.JoinTable, err)
		}
		k := fmt.Sprint(left)
		out[k] = append(out[k], right)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", link.JoinTable, err)
	}
	return out, nil
}

// Table is an in-memory result set or a batch of rows bound for a table.
type Table struct {
	Name    string
	Columns []string
	// Identity lists store-generated columns, skipped by CopyTable unless
	// identity values are kept.
	Identity []string
	Rows     [][]any
}

// Column returns the index of a column, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// DataTable lays entities out as rows of their mapped table.
func DataTable(m *domain.Mapping, entities []domain.Entity) *Table {
	t := &Table{Name: m.Table}
	fields := m.ScalarFields()
	for _, f := range fields {
		t.Columns = append(t.Columns, f.Column)
		if f.Generated {
			t.Identity = append(t.Identity, f.Column)
		}
	}
	for _, e := range entities {
		row := make([]any, len(fields))
		for i, f := range fields {
			row[i] = f.Get(e)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Query runs a statement and buffers every row.
func (s *Store) Query(ctx context.Context, ex Executor, query string, args ...any) (*Table, error) {
	rows, err := ex.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	t := &Table{Columns: cols}
	for rows.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}

// Scalar returns the first column of the first row; nil when there is no row
// or the value is NULL.
func (s *Store) Scalar(ctx context.Context, ex Executor, query string, args ...any) (any, error) {
	var v any
	err := ex.QueryRowContext(ctx, s.rebind(query), args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

// Exec runs a statement and returns the number of affected rows.
func (s *Store) Exec(ctx context.Context, ex Executor, query string, args ...any) (int64, error) {
	res, err := ex.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LastIdentity returns the most recent generated key of a table.
func (s *Store) LastIdentity(ctx context.Context, ex Executor, table string) (int64, error) {
	if strings.TrimSpace(table) == "" {
		return -1, errors.New("table name is required")
	}
	q, args := s.dialect.LastIdentity(table)
	v, err := s.Scalar(ctx, ex, q, args...)
	if err != nil {
		return -1, fmt.Errorf("last identity of %s: %w", table, err)
	}
	if v == nil {
		return -1, fmt.Errorf("last identity of %s: no identity sequence", table)
	}
	n, err := domain.AsInt64(v)
	if err != nil {
		return -1, fmt.Errorf("last identity of %s: %w", table, err)
	}
	return n, nil
}
