package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrate(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "reedcraft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, Migrate(conn))
	// migrations are idempotent
	require.NoError(t, Migrate(conn))

	for _, table := range []string{"snapshots", "verification"} {
		var count int
		err := conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		require.NoError(t, err, "table %s missing", table)
		assert.Zero(t, count)
	}
}

func TestDisplayNameUnique(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "reedcraft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, Migrate(conn))

	insert := `INSERT INTO snapshots (filename, display_name, path, size_bytes, created_at) VALUES (?, ?, ?, ?, datetime('now'))`
	_, err = conn.Exec(insert, "a.zip", "Alpha", "/tmp/a.zip", 1)
	require.NoError(t, err)
	_, err = conn.Exec(insert, "b.zip", "Alpha", "/tmp/b.zip", 1)
	assert.Error(t, err)
}
