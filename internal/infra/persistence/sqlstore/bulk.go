package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const (
	// DefaultDeleteBatch is the number of keys per DELETE statement.
	DefaultDeleteBatch = 1000
	// MaxDeleteBatch caps the number of keys per DELETE statement.
	MaxDeleteBatch = 10000
	// maxBindArgs keeps multi-row inserts under the bind limits of both engines.
	maxBindArgs = 30000
)

// CopyOptions tune CopyTable.
type CopyOptions struct {
	// BatchSize is the number of rows per INSERT statement; zero copies as many
	// rows per statement as the bind limit allows.
	BatchSize int
	// KeepIdentity writes the table's identity columns instead of letting the
	// store generate them.
	KeepIdentity bool
}

// CopyTable inserts every row of t into t.Name with multi-row INSERT
// statements and returns the number of rows written. Copied rows are removed
// from t.
func (s *Store) CopyTable(ctx context.Context, ex Executor, t *Table, opts CopyOptions) (int, error) {
	if t == nil || strings.TrimSpace(t.Name) == "" {
		return 0, errors.New("table name is required")
	}
	var idx []int
	var cols []string
	for i, c := range t.Columns {
		if !opts.KeepIdentity && slices.Contains(t.Identity, c) {
			continue
		}
		idx = append(idx, i)
		cols = append(cols, c)
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("copy %s: no writable columns", t.Name)
	}
	batch := maxBindArgs / len(cols)
	if opts.BatchSize > 0 && opts.BatchSize < batch {
		batch = opts.BatchSize
	}

	copied := 0
	for len(t.Rows) > 0 {
		n := min(batch, len(t.Rows))
		var q strings.Builder
		fmt.Fprintf(&q, "INSERT INTO %s (%s) VALUES ", Quote(t.Name), strings.Join(quoteAll(cols), ", "))
		args := make([]any, 0, n*len(cols))
		for r, row := range t.Rows[:n] {
			if r > 0 {
				q.WriteString(", ")
			}
			q.WriteString("(" + s.placeholders(len(args)+1, len(cols)) + ")")
			for _, i := range idx {
				args = append(args, row[i])
			}
		}
		if _, err := ex.ExecContext(ctx, q.String(), args...); err != nil {
			return copied, fmt.Errorf("copy %s: %w", t.Name, err)
		}
		copied += n
		t.Rows = t.Rows[n:]
	}
	return copied, nil
}

// DeleteByKeys deletes rows whose key column matches one of keys, in batches
// of at most MaxDeleteBatch, and returns the number of rows removed.
func (s *Store) DeleteByKeys(ctx context.Context, ex Executor, table, keyColumn string, keys []string, batch int) (int64, error) {
	if strings.TrimSpace(table) == "" {
		return 0, errors.New("table name is required")
	}
	if keys == nil {
		return 0, errors.New("keys are required")
	}
	if batch < 1 {
		return 0, fmt.Errorf("batch size %d is out of range", batch)
	}
	if keyColumn == "" {
		keyColumn = "Id"
	}
	batch = min(batch, MaxDeleteBatch)

	var total int64
	for start := 0; start < len(keys); start += batch {
		chunk := keys[start:min(start+batch, len(keys))]
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = keyArg(k)
		}
		q := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", Quote(table), Quote(keyColumn), s.placeholders(1, len(chunk)))
		res, err := ex.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("delete from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("delete from %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// keyArg binds numeric keys as integers so they compare against integer key
// columns on engines without implicit text conversion.
func keyArg(k string) any {
	if n, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64); err == nil {
		return n
	}
	return k
}
