package core

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"countries/internal/infra/persistence/sqlstore"
	"countries/pkg/domain"
)

func (m *Manager) bulk(ctx context.Context, op string, fn func(ctx context.Context, ex sqlstore.Executor) error) (err error) {
	release, err := m.guard.enter(op)
	if err != nil {
		return err
	}
	defer release()
	defer func(start time.Time) { m.observe(ctx, op, start, err) }(time.Now())
	if err = m.withRetry(ctx, op, true, fn); err != nil {
		m.lastErr = err
		m.log.WithError(err).WithField("operation", op).Error("bulk command failed")
	}
	return err
}

// BulkDeleteRows deletes rows of table by key in batches. An empty idColumn
// means "Id"; batch defaults to 1000 and is capped at 10000.
func (m *Manager) BulkDeleteRows(ctx context.Context, table string, ids []string, idColumn string, batch int) (int64, error) {
	if batch == 0 {
		batch = sqlstore.DefaultDeleteBatch
	}
	var deleted int64
	err := m.bulk(ctx, "bulk_delete_rows", func(ctx context.Context, ex sqlstore.Executor) error {
		var err error
		deleted, err = m.store.DeleteByKeys(ctx, ex, table, idColumn, ids, batch)
		return err
	})
	return deleted, err
}

// BulkInsertRows copies entities into their table without tracking them.
// Generated columns are assigned by the store.
func BulkInsertRows[T domain.Entity](ctx context.Context, m *Manager, entities []T, batchSize int) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	t, err := GetDataTable(entities)
	if err != nil {
		return 0, err
	}
	return m.BulkCopyTable(ctx, t, sqlstore.CopyOptions{BatchSize: batchSize})
}

// BulkCopyTable writes every row of t to the table it names.
func (m *Manager) BulkCopyTable(ctx context.Context, t *sqlstore.Table, opts sqlstore.CopyOptions) (int, error) {
	if t == nil {
		return 0, errors.New("bulk copy: nil table")
	}
	var copied int
	err := m.bulk(ctx, "bulk_copy_table", func(ctx context.Context, ex sqlstore.Executor) error {
		var err error
		rows := t.Rows
		copied, err = m.store.CopyTable(ctx, ex, t, opts)
		if err != nil {
			// CopyTable drains rows; a retry starts over
			t.Rows = rows
		}
		return err
	})
	return copied, err
}

// GetDataTable lays entities out as rows of their mapped table.
func GetDataTable[T domain.Entity](entities []T) (*sqlstore.Table, error) {
	var zero T
	mapping := zero.Mapping()
	if mapping.ReadOnly {
		return nil, errors.Wrapf(ErrUnsupportedEntityKind, "%s is read-only", mapping.Type)
	}
	rows := make([]domain.Entity, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, e)
	}
	return sqlstore.DataTable(mapping, rows), nil
}
