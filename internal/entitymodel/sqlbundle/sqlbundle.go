// Package sqlbundle hands the countries schema scripts to the store adapters.
package sqlbundle

import (
	"bufio"
	"fmt"
	"strings"

	sqldocs "countries/docs/schema/sql"
)

// SQLite returns the SQLite schema script.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the Postgres schema script.
func Postgres() string {
	return sqldocs.Postgres
}

// ForDialect returns the schema script of a named dialect.
func ForDialect(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite":
		return SQLite(), nil
	case "postgres", "pgx":
		return Postgres(), nil
	}
	return "", fmt.Errorf("no schema bundle for dialect %q", name)
}

// SplitStatements splits a semicolon-terminated script into executable
// statements, dropping blank lines and "--" comment lines.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}
