// Package testutil provides a recording database/sql driver for postgres
// adapter tests that run without a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// StubConn records statements and replays canned results.
type StubConn struct {
	mu sync.Mutex
	// Execs holds every executed statement in order.
	Execs []string
	// Queries holds every query in order.
	Queries []string
	// Isolation holds the isolation level of every transaction begun.
	Isolation []driver.IsolationLevel
	// PingErr fails Ping.
	PingErr error
	// ExecErr fails every statement whose text contains the key.
	ExecErr map[string]error
	// Results maps a query substring to the single-column rows it returns.
	Results map[string][]driver.Value
	// Affected is the row count reported by every exec; zero means one.
	Affected int64
	Commits  int
}

var stubSeq atomic.Int64

// NewStubDB registers a fresh driver and opens a pool backed by one stub
// connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{ExecErr: map[string]error{}, Results: map[string][]driver.Value{}}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Executed reports whether any statement contains fragment.
func (c *StubConn) Executed(fragment string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, stmt := range c.Execs {
		if strings.Contains(stmt, fragment) {
			return true
		}
	}
	return false
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error { return c.PingErr }

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Isolation = append(c.Isolation, opts.Isolation)
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	for key, err := range c.ExecErr {
		if strings.Contains(query, key) {
			return nil, err
		}
	}
	if c.Affected != 0 {
		return driver.RowsAffected(c.Affected), nil
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
	for key, err := range c.ExecErr {
		if strings.Contains(query, key) {
			return nil, err
		}
	}
	for key, values := range c.Results {
		if strings.Contains(query, key) {
			return &stubRows{values: values}, nil
		}
	}
	return &stubRows{}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	values []driver.Value
	idx    int
}

func (r *stubRows) Columns() []string { return []string{"value"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	dest[0] = r.values[r.idx]
	r.idx++
	return nil
}
