package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestExtractUp(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id INT);\n", ExtractUp(content))
	assert.Equal(t, "CREATE TABLE b (id INT);", ExtractUp("CREATE TABLE b (id INT);"))
}

func TestApply_SQLiteRunsOnce(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations := fstest.MapFS{
		"migrations/001_first.sql":  {Data: []byte("-- +migrate Up\nCREATE TABLE first (id INTEGER PRIMARY KEY);\n-- +migrate Down\nDROP TABLE first;\n")},
		"migrations/002_second.sql": {Data: []byte("CREATE TABLE second (id INTEGER PRIMARY KEY);")},
		"migrations/README.md":      {Data: []byte("not a migration")},
	}

	ctx := context.Background()
	require.NoError(t, Apply(ctx, db, SQLite, migrations, "migrations"))
	require.NoError(t, Apply(ctx, db, SQLite, migrations, "migrations"), "second run must be a no-op")

	var applied int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 2, applied)

	_, err = db.Exec("INSERT INTO second (id) VALUES (1)")
	require.NoError(t, err)
}

func TestApply_RequiresDB(t *testing.T) {
	require.Error(t, Apply(context.Background(), nil, SQLite, fstest.MapFS{}, "."))
}
