package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker of the n-th argument, starting at 1.
	Placeholder(n int) string
	// Isolation maps a requested isolation level onto one the engine accepts.
	Isolation(level sql.IsolationLevel) sql.IsolationLevel
	// LastIdentity returns the query and arguments that read the most recent
	// generated key of a table.
	LastIdentity(table string) (string, []any)
	// Transient reports whether err is worth retrying.
	Transient(err error) bool
}

// Quote returns a double-quoted identifier.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func quoteAll(idents []string) []string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = Quote(id)
	}
	return out
}

// TransientMessage reports the failures every engine retries: a timeout or a
// deadlock named in the error text, or an expired context deadline.
func TransientMessage(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadlock")
}

// Rebind rewrites "?" markers into the dialect's placeholders. Markers inside
// quoted literals and identifiers are left alone.
func Rebind(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
