package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"countries/internal/config"
	"countries/internal/infra/persistence/sqlite"
	"countries/internal/infra/persistence/sqlstore"
	"countries/internal/tracker"
	"countries/pkg/domain"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = string(StorageMemory)
	cfg.UpdateRetryLimit = 3
	cfg.UpdateRetryIntervalMinutes = 1
	return cfg
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return nil
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// recordingWriter passes plans through to the store and keeps what it saw.
type recordingWriter struct {
	next      BatchWriter
	calls     int
	executors []sqlstore.Executor
	updates   [][]string
	kinds     []tracker.CommandKind
	// failures are returned, in order, after the plan was written.
	failures []error
}

func (w *recordingWriter) Write(ctx context.Context, ex sqlstore.Executor, cmds []tracker.Command) (int, error) {
	w.calls++
	w.executors = append(w.executors, ex)
	for _, c := range cmds {
		w.kinds = append(w.kinds, c.Kind)
		if c.Kind == tracker.Update {
			cols, _ := c.Entry.UpdateColumns()
			w.updates = append(w.updates, cols)
		}
	}
	n, err := w.next.Write(ctx, ex, cmds)
	if err != nil {
		return n, err
	}
	if len(w.failures) > 0 {
		fail := w.failures[0]
		w.failures = w.failures[1:]
		return 0, fail
	}
	return n, nil
}

type harness struct {
	store  *sqlstore.Store
	m      *Manager
	writer *recordingWriter
	sleeps *sleepRecorder
	hook   *logtest.Hook
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	return newHarnessOn(t, newTestStore(t), mutate)
}

// newHarnessOn builds a fresh unit of work over an existing store.
func newHarnessOn(t *testing.T, store *sqlstore.Store, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	h := &harness{
		store:  store,
		writer: &recordingWriter{next: store},
		sleeps: &sleepRecorder{},
		hook:   hook,
	}
	m, err := NewManager(store, cfg,
		WithLogger(logger),
		WithSleeper(h.sleeps.sleep),
		WithBatchWriter(h.writer),
	)
	require.NoError(t, err)
	h.m = m
	return h
}

type graph struct {
	continent *domain.Continent
	code      *domain.CallingCode
	currency  *domain.Currency
	zone      *domain.TimeZone
	country   *domain.Country
}

func newGraph() graph {
	g := graph{
		continent: &domain.Continent{Abbreviation: "NA", Name: "North America"},
		code:      &domain.CallingCode{CallingCodeNumber: 1},
		currency:  &domain.Currency{Code: "USD", Name: "US Dollar", DecimalDigits: 2},
		zone:      &domain.TimeZone{TimeZoneAcronym: "EST", TimeZoneName: "Eastern Standard Time", UTCOffset: -5},
	}
	g.country = &domain.Country{
		ISO2:         "US",
		ISO3:         "USA",
		ISONumeric:   "840",
		ISOName:      "United States of America (the)",
		Name:         "United States",
		OfficialName: "The United States of America",
		Capital:      "Washington, D.C.",
		Continent:    g.continent,
		CallingCode:  g.code,
		Currencies:   []*domain.Currency{g.currency},
		TimeZones:    []*domain.TimeZone{g.zone},
	}
	for _, st := range []domain.ObjectWithState{g.continent, g.code, g.currency, g.zone, g.country} {
		st.SetDetachedState(domain.Added)
	}
	return g
}

// seed saves a full country graph through its own unit of work.
func seed(t *testing.T, store *sqlstore.Store) graph {
	t.Helper()
	h := newHarnessOn(t, store, nil)
	g := newGraph()
	require.NoError(t, h.m.AddEntity(g.country))
	n, err := h.m.SaveChanges(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	return g
}

func count(t *testing.T, store *sqlstore.Store, table string) int64 {
	t.Helper()
	v, err := store.Scalar(context.Background(), store.DB(), `SELECT COUNT(*) FROM `+sqlstore.Quote(table))
	require.NoError(t, err)
	n, err := domain.AsInt64(v)
	require.NoError(t, err)
	return n
}

type (
	cfgT       = config.Config
	cfgStorage = config.StorageConfig
)

var errDeadlock = errors.New("deadlock detected while writing")
