package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countries/internal/entitymodel"
)

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("COUNTRIES_STORAGE_DRIVER", "memory")
	t.Setenv("COUNTRIES_BLOB_DRIVER", "memory")
}

func runOut(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, &out)
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	memoryEnv(t)
	out, err := runOut(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema "+entitymodel.Version()+" applied (memory)\n", out)
}

func TestIdentityOnSQLiteFile(t *testing.T) {
	t.Setenv("COUNTRIES_STORAGE_DRIVER", "sqlite")
	t.Setenv("COUNTRIES_SQLITE_PATH", filepath.Join(t.TempDir(), "countries.db"))

	_, err := runOut(t, "migrate")
	require.NoError(t, err)
	out, err := runOut(t, "identity", "Country")
	require.NoError(t, err)
	assert.Equal(t, "30000\n", out)

	_, err = runOut(t, "identity", " ")
	assert.Error(t, err)
}

func TestPurgeSplitsIDs(t *testing.T) {
	memoryEnv(t)
	out, err := runOut(t, "purge", "--table", "Currency", "1,2", "3")
	require.NoError(t, err)
	assert.Equal(t, "deleted 0 rows from Currency\n", out)

	_, err = runOut(t, "purge", "1")
	assert.Error(t, err)
}

func TestExportDefaultViews(t *testing.T) {
	memoryEnv(t)
	out, err := runOut(t, "export")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "CountryInfo\t0 rows\treports/CountryInfo/"))

	out, err = runOut(t, "export", "--view", "Currency", "--blob-driver", "fs", "--blob-root", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "file://")

	_, err = runOut(t, "export", "--view", "Nope")
	assert.Error(t, err)
}

func TestHelp(t *testing.T) {
	_, err := runOut(t, "--help")
	var fe *flags.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, flags.ErrHelp, fe.Type)
}
