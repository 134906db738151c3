// Package sqlite opens the countries schema on the pure Go SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"countries/internal/entitymodel/sqlbundle"
	"countries/internal/infra/persistence/sqlstore"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const defaultPath = "countries.db"

// Dialect is the SQLite flavour of sqlstore.Dialect.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Placeholder(int) string { return "?" }

// Isolation always returns the default level; SQLite transactions are
// serializable and the driver rejects explicit levels.
func (Dialect) Isolation(sql.IsolationLevel) sql.IsolationLevel { return sql.LevelDefault }

func (Dialect) LastIdentity(table string) (string, []any) {
	return `SELECT seq FROM sqlite_sequence WHERE name = ?`, []any{table}
}

// Transient adds busy and locked database errors to the shared rules.
func (Dialect) Transient(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return sqlstore.TransientMessage(err)
}

// Open opens (creating if needed) the database at path, enables foreign keys
// and applies the schema. An empty path uses countries.db; MemoryPath opens a
// private in-memory database held on a single connection.
func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	if path == "" {
		path = defaultPath
	}
	dsn := path
	memory := path == MemoryPath || strings.Contains(path, "mode=memory")
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	if !strings.Contains(dsn, "_pragma=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		// each connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	store := sqlstore.New(db, Dialect{})
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.ApplySchema(ctx, sqlbundle.SplitStatements(sqlbundle.SQLite())); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
