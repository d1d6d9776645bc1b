package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRender(t *testing.T) {
	path := writeTemplate(t, t.TempDir(), "001_test.up.sql.template",
		"CREATE TABLE t (a {{.TextType}}, b {{.TimestampType}} DEFAULT {{.CurrentTimestamp}});")

	sqlite, err := Render(path, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE t (a TEXT, b TIMESTAMP DEFAULT CURRENT_TIMESTAMP);", string(sqlite))

	postgres, err := Render(path, "postgres")
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE t (a TEXT, b TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP);", string(postgres))
}

func TestRender_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Render(filepath.Join(dir, "missing.sql.template"), "sqlite")
	assert.Error(t, err)

	path := writeTemplate(t, dir, "001_bad.up.sql.template", "{{.Nope}}")
	_, err = Render(path, "sqlite")
	assert.Error(t, err)

	_, err = Render(path, "mysql")
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestGenerateAll(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "001_a.up.sql.template", "{{.IntType}}")
	writeTemplate(t, dir, "001_a.down.sql.template", "DROP")

	written, err := GenerateAll(dir)
	require.NoError(t, err)
	assert.Len(t, written, 4)

	got, err := os.ReadFile(filepath.Join(dir, "postgres", "001_a.up.sql"))
	require.NoError(t, err)
	assert.Equal(t, "INTEGER", string(got))

	_, err = os.Stat(filepath.Join(dir, "sqlite", "001_a.down.sql"))
	assert.NoError(t, err)
}

// The embedded store migrations must match their templates.
func TestStoreMigrationsUpToDate(t *testing.T) {
	dir := filepath.Join("..", "store", "migrations")
	templates, err := Templates(dir)
	require.NoError(t, err)
	require.NotEmpty(t, templates)

	for _, templatePath := range templates {
		for _, dbType := range DatabaseTypes() {
			want, err := Render(templatePath, dbType)
			require.NoError(t, err)

			got, err := os.ReadFile(OutputPath(templatePath, dbType))
			require.NoError(t, err, "run migrate-gen to regenerate %s", templatePath)
			assert.Equal(t, string(want), string(got), "%s is stale for %s", templatePath, dbType)
		}
	}
}
