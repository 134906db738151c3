// Package postgres opens the countries schema on Postgres through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"countries/internal/entitymodel/sqlbundle"
	"countries/internal/infra/persistence/sqlstore"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/countries?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// transientCodes are SQLSTATE classes retried by the save loop: deadlock,
// serialization failure, statement timeout or cancel, and lock timeout.
var transientCodes = map[string]struct{}{
	"40P01": {},
	"40001": {},
	"57014": {},
	"55P03": {},
}

// Dialect is the Postgres flavour of sqlstore.Dialect.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// Isolation maps levels Postgres does not implement onto the next stronger one.
func (Dialect) Isolation(level sql.IsolationLevel) sql.IsolationLevel {
	switch level {
	case sql.LevelReadUncommitted:
		return sql.LevelReadCommitted
	case sql.LevelSnapshot:
		return sql.LevelRepeatableRead
	case sql.LevelWriteCommitted:
		return sql.LevelReadCommitted
	case sql.LevelLinearizable:
		return sql.LevelSerializable
	}
	return level
}

// LastIdentity reads the identity sequence of the table's "Id" column. A
// sequence that was never advanced reports its start value minus one.
func (Dialect) LastIdentity(table string) (string, []any) {
	q := `SELECT COALESCE(pg_sequence_last_value(pg_get_serial_sequence($1, 'Id')::regclass),
	(SELECT seqstart - seqincrement FROM pg_sequence WHERE seqrelid = pg_get_serial_sequence($1, 'Id')::regclass))`
	return q, []any{sqlstore.Quote(table)}
}

// Transient classifies by SQLSTATE first, then by the shared message rules.
func (Dialect) Transient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := transientCodes[pgErr.Code]; ok {
			return true
		}
	}
	return sqlstore.TransientMessage(err)
}

// Open connects using dsn (falling back to a local default), verifies the
// connection and applies the schema.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := sqlstore.New(db, Dialect{})
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.ApplySchema(ctx, schemaStatements()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func schemaStatements() []string {
	var out []string
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.Postgres()) {
		if strings.TrimSpace(stmt) != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
