package driver

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbgateway/internal/core"
)

// fixtureDB creates a small database on disk so the read-only adapter has
// something to open.
func fixtureDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			team_id INTEGER REFERENCES teams(id)
		);
		CREATE TABLE teams (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO users (id, name, team_id) VALUES (1, 'ada', 1), (2, 'grace', 1), (3, 'alan', 2);
		INSERT INTO teams (id, name) VALUES (1, 'compilers'), (2, 'crypto');
	`)
	require.NoError(t, err)
	return path
}

func openFixture(t *testing.T) core.Handle {
	t.Helper()
	handle, err := (&sqliteAdapter{}).Connect(context.Background(),
		core.Credentials{Kind: core.KindSQLite, Path: fixtureDB(t)}, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })
	return handle
}

func TestSQLiteRunAndLimit(t *testing.T) {
	handle := openFixture(t)
	ctx := context.Background()

	raw, err := handle.Run(ctx, "SELECT id, name FROM users ORDER BY id", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, raw.Columns)
	assert.Len(t, raw.Rows, 3)
	assert.False(t, raw.More)
	assert.Equal(t, "ada", raw.Rows[0]["name"])

	raw, err = handle.Run(ctx, "SELECT id FROM users ORDER BY id", 2)
	require.NoError(t, err)
	assert.Len(t, raw.Rows, 2)
	assert.True(t, raw.More, "a third row exists past the limit")
}

func TestSQLiteRejectsWrites(t *testing.T) {
	handle := openFixture(t)

	_, err := handle.Run(context.Background(), "DELETE FROM users", 0)
	assert.Error(t, err, "the connection itself must be read-only")

	// The data is untouched.
	raw, err := handle.Run(context.Background(), "SELECT count(*) AS n FROM users", 0)
	require.NoError(t, err)
	require.Len(t, raw.Rows, 1)
}

func TestSQLiteIntrospect(t *testing.T) {
	handle := openFixture(t)

	meta, err := handle.Introspect(context.Background(), core.IntrospectScope{Relationships: true})
	require.NoError(t, err)
	assert.Equal(t, "main", meta.Schema)
	require.Len(t, meta.Tables, 2)

	byName := map[string]core.TableInfo{}
	for _, tbl := range meta.Tables {
		byName[tbl.Name] = tbl
	}

	users := byName["users"]
	require.Len(t, users.Columns, 3)
	assert.Equal(t, "id", users.Columns[0].Name)
	assert.Equal(t, "PRI", users.Columns[0].Key)

	require.Len(t, users.Relationships, 1)
	assert.Equal(t, "teams", users.Relationships[0].RefTable)
	assert.Equal(t, "team_id", users.Relationships[0].Column)
}

func TestSQLiteIntrospectSingleTable(t *testing.T) {
	handle := openFixture(t)

	meta, err := handle.Introspect(context.Background(), core.IntrospectScope{Table: "teams"})
	require.NoError(t, err)
	require.Len(t, meta.Tables, 1)
	assert.Equal(t, "teams", meta.Tables[0].Name)
	assert.Len(t, meta.Tables[0].Columns, 2)
}

func TestSQLitePing(t *testing.T) {
	handle := openFixture(t)
	assert.NoError(t, handle.Ping(context.Background()))
}
