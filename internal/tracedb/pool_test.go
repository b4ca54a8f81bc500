package tracedb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDB creates a minimal SQLite file the pool can open read-only.
func newTestDB(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE probe (x INTEGER)")
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

func TestPool_SharesConnectionsPerBundle(t *testing.T) {
	dir := t.TempDir()
	path := newTestDB(t, dir, "trace.db")

	pool := NewConnectionPool(DefaultPoolConfig())
	defer pool.Close()

	db1, err := pool.Get(context.Background(), path)
	require.NoError(t, err)
	db2, err := pool.Get(context.Background(), path)
	require.NoError(t, err)
	assert.Same(t, db1, db2)

	open, referenced := pool.Stats()
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, referenced)

	pool.Release(path)
	_, referenced = pool.Stats()
	assert.Equal(t, 1, referenced)

	pool.Release(path)
	open, referenced = pool.Stats()
	assert.Equal(t, 1, open)
	assert.Equal(t, 0, referenced)
}

func TestPool_RejectsMissingDatabase(t *testing.T) {
	pool := NewConnectionPool(DefaultPoolConfig())
	defer pool.Close()

	_, err := pool.Get(context.Background(), filepath.Join(t.TempDir(), "absent.db"))
	assert.Error(t, err)
}

func TestPool_EvictsIdleAtCapacity(t *testing.T) {
	dir := t.TempDir()
	a := newTestDB(t, dir, "a.db")
	b := newTestDB(t, dir, "b.db")

	pool := NewConnectionPool(PoolConfig{MaxBundles: 1})
	defer pool.Close()

	_, err := pool.Get(context.Background(), a)
	require.NoError(t, err)
	pool.Release(a)

	// The idle connection to a makes room for b.
	_, err = pool.Get(context.Background(), b)
	require.NoError(t, err)

	open, referenced := pool.Stats()
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, referenced)
}

func TestPool_FailsWhenAllBundlesReferenced(t *testing.T) {
	dir := t.TempDir()
	a := newTestDB(t, dir, "a.db")
	b := newTestDB(t, dir, "b.db")

	pool := NewConnectionPool(PoolConfig{MaxBundles: 1})
	defer pool.Close()

	_, err := pool.Get(context.Background(), a)
	require.NoError(t, err)

	_, err = pool.Get(context.Background(), b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum open bundles")
}

func TestPool_ClosedPoolRejectsGet(t *testing.T) {
	dir := t.TempDir()
	path := newTestDB(t, dir, "trace.db")

	pool := NewConnectionPool(DefaultPoolConfig())
	require.NoError(t, pool.Close())

	_, err := pool.Get(context.Background(), path)
	assert.Error(t, err)
}

func TestPool_ReadOnlyConnections(t *testing.T) {
	dir := t.TempDir()
	path := newTestDB(t, dir, "trace.db")

	pool := NewConnectionPool(DefaultPoolConfig())
	defer pool.Close()

	db, err := pool.Get(context.Background(), path)
	require.NoError(t, err)
	defer pool.Release(path)

	_, err = db.Exec("INSERT INTO probe (x) VALUES (1)")
	assert.Error(t, err)
}
