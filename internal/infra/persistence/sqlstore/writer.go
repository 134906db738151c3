package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"countries/internal/tracker"
	"countries/pkg/domain"
)

// ConflictError reports a write that matched no row: the row was deleted or
// its concurrency token changed since it was read.
type ConflictError struct {
	Kind  tracker.CommandKind
	Table string
	Key   any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s Id=%v affected no rows", e.Kind, e.Table, e.Key)
}

// Write executes commands in order and returns the number of entity rows
// inserted, updated or deleted. Join-table rows are not counted.
func (s *Store) Write(ctx context.Context, ex Executor, cmds []tracker.Command) (int, error) {
	count := 0
	for _, cmd := range cmds {
		var err error
		switch cmd.Kind {
		case tracker.Insert:
			err = s.insert(ctx, ex, cmd.Entry)
		case tracker.Update:
			err = s.update(ctx, ex, cmd.Entry)
		case tracker.Delete:
			err = s.delete(ctx, ex, cmd.Entry)
		case tracker.LinkInsert:
			err = s.linkInsert(ctx, ex, cmd.Link)
		case tracker.LinkDelete:
			err = s.linkDelete(ctx, ex, cmd.Link)
		default:
			err = fmt.Errorf("unknown command %s", cmd.Kind)
		}
		if err != nil {
			return count, err
		}
		if cmd.Entry != nil {
			count++
		}
	}
	return count, nil
}

func (s *Store) insert(ctx context.Context, ex Executor, entry *tracker.Entry) error {
	if err := entry.FixupReferences(); err != nil {
		return err
	}
	m := entry.Mapping()
	cols, vals := entry.InsertColumns()
	var generated []domain.Field
	for _, f := range m.ScalarFields() {
		if f.Generated {
			generated = append(generated, f)
		}
	}

	var q strings.Builder
	fmt.Fprintf(&q, "INSERT INTO %s", Quote(m.Table))
	if len(cols) == 0 {
		q.WriteString(" DEFAULT VALUES")
	} else {
		fmt.Fprintf(&q, " (%s) VALUES (%s)", strings.Join(quoteAll(cols), ", "), s.placeholders(1, len(cols)))
	}
	if len(generated) == 0 {
		if _, err := ex.ExecContext(ctx, q.String(), vals...); err != nil {
			return fmt.Errorf("insert %s: %w", m.Table, err)
		}
		return nil
	}
	names := make([]string, len(generated))
	for i, f := range generated {
		names[i] = f.Column
	}
	fmt.Fprintf(&q, " RETURNING %s", strings.Join(quoteAll(names), ", "))

	out := make([]any, len(generated))
	ptrs := make([]any, len(generated))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := ex.QueryRowContext(ctx, q.String(), vals...).Scan(ptrs...); err != nil {
		return fmt.Errorf("insert %s: %w", m.Table, err)
	}
	for i, f := range generated {
		if err := entry.SetGenerated(f.Name, out[i]); err != nil {
			return fmt.Errorf("insert %s: %w", m.Table, err)
		}
	}
	return nil
}

func (s *Store) update(ctx context.Context, ex Executor, entry *tracker.Entry) error {
	if err := entry.FixupReferences(); err != nil {
		return err
	}
	m := entry.Mapping()
	cols, vals := entry.UpdateColumns()
	if len(cols) == 0 {
		return nil
	}
	sets := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, Quote(c)+" = "+s.dialect.Placeholder(i+1))
	}
	keyCol, key := entry.KeyColumn()
	args := append(vals, key)
	where := Quote(keyCol) + " = " + s.dialect.Placeholder(len(args))

	tokenCol, token, hasToken := entry.Token()
	if !hasToken {
		q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", Quote(m.Table), strings.Join(sets, ", "), where)
		res, err := ex.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("update %s: %w", m.Table, err)
		}
		return expectOne(res, tracker.Update, m.Table, key)
	}

	tc := Quote(tokenCol)
	sets = append(sets, tc+" = "+tc+" + 1")
	args = append(args, token)
	where += " AND " + tc + " = " + s.dialect.Placeholder(len(args))
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s", Quote(m.Table), strings.Join(sets, ", "), where, tc)
	var next any
	err := ex.QueryRowContext(ctx, q, args...).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return &ConflictError{Kind: tracker.Update, Table: m.Table, Key: key}
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", m.Table, err)
	}
	f, _ := m.TokenField()
	return entry.SetGenerated(f.Name, next)
}

func (s *Store) delete(ctx context.Context, ex Executor, entry *tracker.Entry) error {
	m := entry.Mapping()
	keyCol, key := entry.KeyColumn()
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", Quote(m.Table), Quote(keyCol), s.dialect.Placeholder(1))
	args := []any{key}
	if tokenCol, token, ok := entry.Token(); ok {
		q += fmt.Sprintf(" AND %s = %s", Quote(tokenCol), s.dialect.Placeholder(2))
		args = append(args, token)
	}
	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", m.Table, err)
	}
	return expectOne(res, tracker.Delete, m.Table, key)
}

func (s *Store) linkInsert(ctx context.Context, ex Executor, l *tracker.LinkEntry) error {
	left, right := l.Keys()
	q := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s)",
		Quote(l.Link.JoinTable), Quote(l.Link.LeftKey), Quote(l.Link.RightKey), s.placeholders(1, 2))
	if _, err := ex.ExecContext(ctx, q, left, right); err != nil {
		return fmt.Errorf("insert %s: %w", l.Link.JoinTable, err)
	}
	return nil
}

// linkDelete tolerates a missing row; the foreign key cascade may have
// removed it already.
func (s *Store) linkDelete(ctx context.Context, ex Executor, l *tracker.LinkEntry) error {
	left, right := l.Keys()
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
		Quote(l.Link.JoinTable), Quote(l.Link.LeftKey), s.dialect.Placeholder(1), Quote(l.Link.RightKey), s.dialect.Placeholder(2))
	if _, err := ex.ExecContext(ctx, q, left, right); err != nil {
		return fmt.Errorf("delete %s: %w", l.Link.JoinTable, err)
	}
	return nil
}

func expectOne(res sql.Result, kind tracker.CommandKind, table string, key any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s rows affected: %w", kind, table, err)
	}
	if n != 1 {
		return &ConflictError{Kind: kind, Table: table, Key: key}
	}
	return nil
}

func (s *Store) placeholders(first, n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = s.dialect.Placeholder(first + i)
	}
	return strings.Join(marks, ", ")
}
