package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, migrations ...Migration) *sqlx.DB {
	t.Helper()
	conn, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "test.db"), migrations...)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func tableExists(t *testing.T, conn *sqlx.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, conn.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name))
	return n > 0
}

var createItems = Migration{
	Version:     20260101000001,
	Description: "create items",
	Up:          Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY)`),
}

func TestOpen_AppliesPragmas(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, checkPragmas(context.Background(), conn))
}

func TestDSN(t *testing.T) {
	got := dsn("/tmp/outbox.db")
	assert.True(t, strings.HasPrefix(got, "/tmp/outbox.db?"))
	assert.Contains(t, got, "_pragma=journal_mode(WAL)")
	assert.Contains(t, got, "_pragma=busy_timeout(5000)")
}

func TestDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TRAFFICAL_HOME", home)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "outbox.db"), path)
}

func TestOpen_RunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	conn, err := Open(context.Background(), path, createItems)
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, tableExists(t, conn, "items"))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestMigrate_OrdersAndSkipsApplied(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	addName := Migration{
		Version:     20260101000002,
		Description: "add name",
		Up: func(ctx context.Context, tx *sqlx.Tx) error {
			exists, err := ColumnExists(ctx, tx, "items", "name")
			if err != nil || exists {
				return err
			}
			return Exec(`ALTER TABLE items ADD COLUMN name TEXT`)(ctx, tx)
		},
	}
	migrations := []Migration{addName, createItems}

	n, err := Migrate(ctx, conn, migrations)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = Migrate(ctx, conn, migrations)
	require.NoError(t, err)
	assert.Zero(t, n)

	versions, err := Applied(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, []int64{20260101000001, 20260101000002}, versions)
}

func TestMigrate_FailureIsNotRecorded(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	broken := Migration{Version: 20260101000003, Description: "broken", Up: Exec(`CREATE TABLE nope (`)}

	n, err := Migrate(ctx, conn, []Migration{createItems, broken})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "20260101000003")
	assert.Equal(t, 1, n)

	versions, err := Applied(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, []int64{20260101000001}, versions)
}

func TestMigrate_DuplicateVersion(t *testing.T) {
	conn := openTestDB(t)

	_, err := Migrate(context.Background(), conn, []Migration{createItems, createItems})
	assert.ErrorContains(t, err, "duplicate migration version")
	assert.False(t, tableExists(t, conn, "items"))
}
