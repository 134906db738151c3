// Package sqlstore executes change-tracker write plans and typed reads over
// database/sql. The engine adapters in the sqlite and postgres packages supply
// the connection and the Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Executor is satisfied by *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Executor = (*sql.DB)(nil)
	_ Executor = (*sql.Tx)(nil)
)

// Store couples a connection pool with its dialect.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the engine dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.dialect.Name(), err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// BeginTx opens a transaction at the closest isolation level the engine
// supports.
func (s *Store) BeginTx(ctx context.Context, level sql.IsolationLevel) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.dialect.Isolation(level)})
	if err != nil {
		return nil, fmt.Errorf("begin %s transaction: %w", s.dialect.Name(), err)
	}
	return tx, nil
}

// Transient reports whether err is worth retrying on this engine.
func (s *Store) Transient(err error) bool {
	return s.dialect.Transient(err)
}

// ApplySchema executes DDL statements in order.
func (s *Store) ApplySchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func (s *Store) rebind(query string) string {
	return Rebind(s.dialect, query)
}
