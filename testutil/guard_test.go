package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicates(t *testing.T) {
	assert.True(t, InternalImportForbidden("countries/internal/core"))
	assert.False(t, InternalImportForbidden("countries/pkg/domain"))

	assert.True(t, DriverImportForbidden("database/sql"))
	assert.True(t, DriverImportForbidden("database/sql/driver"))
	assert.True(t, DriverImportForbidden("github.com/jackc/pgx/v5/stdlib"))
	assert.True(t, DriverImportForbidden("github.com/aws/aws-sdk-go-v2/service/s3"))
	assert.False(t, DriverImportForbidden("modernc.org/sqlitex"))
	assert.False(t, DriverImportForbidden("fmt"))

	both := Any(InternalImportForbidden, DriverImportForbidden)
	assert.True(t, both("modernc.org/sqlite"))
	assert.True(t, both("countries/internal/x"))
	assert.False(t, both("strings"))
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
	}
	write("a.go", "package tmp\nimport (\n\t\"fmt\"\n\t_ \"modernc.org/sqlite\"\n)\nvar _ = fmt.Sprint\n")
	write("a_test.go", "package tmp\nimport \"database/sql\"\nvar _ sql.DB\n")

	viols, err := DirectImportViolations(dir, DriverImportForbidden)
	require.NoError(t, err)
	assert.Equal(t, []string{"modernc.org/sqlite (in a.go)"}, viols)

	AssertNoDirectImports(t, dir, InternalImportForbidden, "none expected")

	_, err = DirectImportViolations(filepath.Join(dir, "missing"), DriverImportForbidden)
	assert.Error(t, err)
}
