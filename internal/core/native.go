package core

import (
	"context"
	"database/sql"
	"time"

	log "github.com/sirupsen/logrus"

	"countries/internal/config"
	"countries/internal/infra/persistence/sqlstore"
	"countries/pkg/domain"
)

// withRetry runs fn in the save transaction scope, retrying transient
// failures like SaveChanges does. bulk uses a new serializable transaction
// and the bulk timeout.
func (m *Manager) withRetry(ctx context.Context, op string, bulk bool, fn func(ctx context.Context, ex sqlstore.Executor) error) error {
	scope, level, timeout := m.cfg.TransactionScope, m.cfg.Isolation(), m.cfg.CommandTimeout()
	if bulk {
		scope, level, timeout = config.ScopeRequiresNew, sql.LevelSerializable, BulkTimeout
	}
	limit := m.cfg.UpdateRetryLimit
	if scope == config.ScopeRequired && m.ambient != nil {
		limit = 1
	}
	for attempt := 1; ; attempt++ {
		err := func() error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			_, err := m.inScope(ctx, scope, level, func(ex sqlstore.Executor) (int, error) {
				return 0, fn(ctx, ex)
			})
			return err
		}()
		if err == nil {
			return nil
		}
		if !m.store.Transient(err) {
			return m.classify(op, err, attempt)
		}
		if attempt >= limit {
			return &StoreError{Op: op, Transient: true, Attempts: attempt, Err: err}
		}
		m.log.WithError(err).WithFields(log.Fields{
			"operation": op,
			"attempt":   attempt,
			"limit":     limit,
			"retry_in":  m.cfg.RetryInterval().String(),
		}).Warn("transient failure, retrying")
		m.metrics.Retry(ctx, op)
		if err := m.sleep(ctx, m.cfg.RetryInterval()); err != nil {
			return &StoreError{Op: op, Transient: true, Attempts: attempt, Err: err}
		}
	}
}

// native runs a guarded native statement and records the last failure.
func (m *Manager) native(ctx context.Context, op, query string, fn func(ctx context.Context, ex sqlstore.Executor) error) (err error) {
	release, err := m.guard.enter(op)
	if err != nil {
		return err
	}
	defer release()
	defer func(start time.Time) { m.observe(ctx, op, start, err) }(time.Now())
	if err = m.withRetry(ctx, op, false, fn); err != nil {
		m.lastErr = err
		m.log.WithError(err).WithFields(log.Fields{
			"operation": op,
			"sql":       query,
			"timeout":   m.cfg.CommandTimeout().String(),
		}).Error("native SQL failed")
	}
	return err
}

// ExecuteNonQuery runs a statement and returns the number of affected rows.
func (m *Manager) ExecuteNonQuery(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := m.native(ctx, "execute_non_query", query, func(ctx context.Context, ex sqlstore.Executor) error {
		var err error
		affected, err = m.store.Exec(ctx, ex, query, args...)
		return err
	})
	return affected, err
}

// ExecuteScalar returns the first column of the first row, nil when there is
// none.
func (m *Manager) ExecuteScalar(ctx context.Context, query string, args ...any) (any, error) {
	var value any
	err := m.native(ctx, "execute_scalar", query, func(ctx context.Context, ex sqlstore.Executor) error {
		var err error
		value, err = m.store.Scalar(ctx, ex, query, args...)
		return err
	})
	return value, err
}

// ExecuteQuery buffers every row of a query.
func (m *Manager) ExecuteQuery(ctx context.Context, query string, args ...any) (*sqlstore.Table, error) {
	var table *sqlstore.Table
	err := m.native(ctx, "execute_query", query, func(ctx context.Context, ex sqlstore.Executor) error {
		var err error
		table, err = m.store.Query(ctx, ex, query, args...)
		return err
	})
	return table, err
}

// LastError returns the failure of the most recent native or bulk command.
func (m *Manager) LastError() error { return m.lastErr }

// GetLastIdentityKey returns the last identity value issued for table, or the
// seed minus one before any insert. It returns -1 when the table is blank or
// the lookup fails.
func (m *Manager) GetLastIdentityKey(ctx context.Context, table string) int64 {
	id, err := m.store.LastIdentity(ctx, m.executor(), table)
	if err != nil {
		m.lastErr = err
		m.log.WithError(err).WithField("table", table).Debug("last identity lookup failed")
		return -1
	}
	return id
}

// GetColumnName returns the "Table.Column" name of a property.
func (m *Manager) GetColumnName(mapping *domain.Mapping, property string) (string, error) {
	if mapping == nil {
		return "", ErrUnsupportedEntityKind
	}
	return mapping.ColumnName(property)
}
