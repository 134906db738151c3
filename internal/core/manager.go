// Package core coordinates a unit of work over the countries store: it
// reconciles caller-declared lifecycle intents with the change tracker, saves
// pending changes under the configured transaction scope with retries, and
// exposes query, reporting view, native SQL and bulk helpers.
package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"countries/internal/config"
	"countries/internal/infra/persistence/sqlstore"
	"countries/internal/tracker"
)

// BatchWriter executes an ordered write plan and reports the number of entity
// rows written. *sqlstore.Store implements it.
type BatchWriter interface {
	Write(ctx context.Context, ex sqlstore.Executor, cmds []tracker.Command) (int, error)
}

// Option customises a Manager.
type Option func(*Manager)

// WithLogger routes manager logs to logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.log = logger
		}
	}
}

// WithMetrics records operation outcomes on rec.
func WithMetrics(rec MetricsRecorder) Option {
	return func(m *Manager) {
		if rec != nil {
			m.metrics = rec
		}
	}
}

// WithSleeper replaces the pause between retry attempts.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(m *Manager) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// WithBatchWriter replaces the component that executes save plans.
func WithBatchWriter(w BatchWriter) Option {
	return func(m *Manager) {
		if w != nil {
			m.writer = w
		}
	}
}

// Manager is one unit of work over a store. It is not safe for concurrent use;
// with GuardConcurrentUse, overlapping mutating calls fail with
// ErrCrossThreadUsage.
type Manager struct {
	store   *sqlstore.Store
	writer  BatchWriter
	cfg     config.Config
	tracker *tracker.Tracker
	log     log.FieldLogger
	metrics MetricsRecorder
	sleep   func(context.Context, time.Duration) error
	guard   *ownerGuard

	ambient *sql.Tx
	lastErr error
}

// NewManager builds a manager over store. cfg is normalized first.
func NewManager(store *sqlstore.Store, cfg config.Config, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("core: nil store")
	}
	if err := cfg.Normalize(); err != nil {
		return nil, errors.WithMessage(err, "manager config")
	}
	m := &Manager{
		store:   store,
		writer:  store,
		cfg:     cfg,
		tracker: tracker.New(tracker.Options{DirtyTracking: cfg.ProxyCreationEnabled}),
		log:     log.StandardLogger(),
		metrics: noopMetrics{},
		sleep:   sleepContext,
		guard:   newOwnerGuard(cfg.GuardConcurrentUse),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.log = m.log.WithField("component", "countries.manager")
	return m, nil
}

// Config returns the normalized settings.
func (m *Manager) Config() config.Config { return m.cfg }

// Store returns the underlying store.
func (m *Manager) Store() *sqlstore.Store { return m.store }

// Tracker exposes the change tracker of this unit of work.
func (m *Manager) Tracker() *tracker.Tracker { return m.tracker }

// Close detaches every entity and closes the store.
func (m *Manager) Close() error {
	m.tracker.Clear()
	return m.store.Close()
}

// RunInTransaction opens a transaction that saves and queries made by fn join
// under the Required scope. It commits when fn returns nil. Nested calls reuse
// the open transaction.
func (m *Manager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.ambient != nil {
		return fn(ctx)
	}
	tx, err := m.store.BeginTx(ctx, m.cfg.Isolation())
	if err != nil {
		return &StoreError{Op: "begin transaction", Transient: m.store.Transient(err), Attempts: 1, Err: err}
	}
	m.ambient = tx
	defer func() { m.ambient = nil }()
	if err := fn(ctx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.log.WithError(rbErr).Warn("rollback ambient transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "commit transaction", Transient: m.store.Transient(err), Attempts: 1, Err: err}
	}
	return nil
}

func (m *Manager) executor() sqlstore.Executor {
	if m.ambient != nil {
		return m.ambient
	}
	return m.store.DB()
}

func (m *Manager) observe(ctx context.Context, op string, start time.Time, err error) {
	m.metrics.Observe(ctx, op, err == nil, time.Since(start))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
