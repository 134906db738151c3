// Package sqldocs embeds the countries schema scripts kept in the docs tree.
package sqldocs

import _ "embed"

// SQLite holds the tables, identity seeds and views for SQLite.
//
//go:embed sqlite.sql
var SQLite string

// Postgres holds the tables, identity columns and views for Postgres.
//
//go:embed postgres.sql
var Postgres string
