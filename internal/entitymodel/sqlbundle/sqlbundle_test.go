package sqlbundle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(SQLite())
	require.NotEmpty(t, stmts)
	for _, stmt := range stmts {
		assert.False(t, strings.HasPrefix(stmt, "--"), "statement starts with comment: %q", stmt)
		assert.True(t, strings.HasSuffix(stmt, ";"), "statement missing terminator: %q", stmt)
	}
}

func TestSplitStatementsKeepsUnterminatedTail(t *testing.T) {
	stmts := SplitStatements("-- header\nSELECT 1;\n\nSELECT\n  2")
	assert.Equal(t, []string{"SELECT 1;", "SELECT\n  2"}, stmts)
}

func TestBundlesDeclareEveryTableAndView(t *testing.T) {
	for _, ddl := range []string{SQLite(), Postgres()} {
		for _, name := range []string{
			"Continent", "CallingCode", "Country", "Currency", "TimeZone",
			"CountryCurrency", "CountryTimeZone",
			"CountryInfo", "CountryCurrencyInfo", "CountryTimeZoneInfo",
		} {
			assert.Contains(t, ddl, `"`+name+`"`)
		}
	}
	assert.Contains(t, Postgres(), "START WITH 30001")
	assert.Contains(t, SQLite(), "'Country', 30000")
}

func TestForDialect(t *testing.T) {
	ddl, err := ForDialect("SQLite")
	require.NoError(t, err)
	assert.Equal(t, SQLite(), ddl)
	ddl, err = ForDialect("pgx")
	require.NoError(t, err)
	assert.Equal(t, Postgres(), ddl)
	_, err = ForDialect("mssql")
	assert.Error(t, err)
}
