package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"field-sync-service/internal/config"
)

func newBadgerForTest(t *testing.T) *BadgerStore {
	t.Helper()

	s, err := NewBadgerStore("", true)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func newSQLiteForTest(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestKVBackends(t *testing.T) {
	t.Parallel()

	backends := map[string]func(t *testing.T) KV{
		"badger": func(t *testing.T) KV { return newBadgerForTest(t) },
		"sqlite": func(t *testing.T) KV { return newSQLiteForTest(t) },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			kv := open(t)

			_, found, err := kv.Get(ctx, "sync_pending_operations")
			require.NoError(t, err)
			assert.False(t, found, "unset key must report not found")

			require.NoError(t, kv.Set(ctx, "sync_pending_operations", `[{"id":"a"}]`))
			v, found, err := kv.Get(ctx, "sync_pending_operations")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, `[{"id":"a"}]`, v)

			require.NoError(t, kv.Set(ctx, "sync_pending_operations", `[]`))
			v, _, err = kv.Get(ctx, "sync_pending_operations")
			require.NoError(t, err)
			assert.Equal(t, `[]`, v, "set overwrites")

			require.NoError(t, kv.Remove(ctx, "sync_pending_operations"))
			_, found, err = kv.Get(ctx, "sync_pending_operations")
			require.NoError(t, err)
			assert.False(t, found)

			assert.NoError(t, kv.Remove(ctx, "never-set"), "removing a missing key is not an error")
		})
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "local_clients", `[{"tempId":"tmp-1"}]`))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	v, found, err := reopened.Get(ctx, "local_clients")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[{"tempId":"tmp-1"}]`, v)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewBadgerStore(dir, false)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "last_sync_date", "2026-10-19T08:00:00Z"))
	require.NoError(t, s.Close())

	reopened, err := NewBadgerStore(dir, false)
	require.NoError(t, err)
	defer reopened.Close()

	v, found, err := reopened.Get(ctx, "last_sync_date")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2026-10-19T08:00:00Z", v)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	kv, err := Open(ctx, config.StorageConfig{Type: config.StorageBadger, InMemory: true})
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, kv)
	require.NoError(t, kv.Close())

	kv, err = Open(ctx, config.StorageConfig{Type: config.StorageSQLite, Path: filepath.Join(t.TempDir(), "nested", "kv.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, kv)
	require.NoError(t, kv.Close())

	_, err = Open(ctx, config.StorageConfig{Type: "tape"})
	assert.Error(t, err)
}

func TestNewMySQLStore_RejectsBadTableName(t *testing.T) {
	t.Parallel()

	_, err := NewMySQLStore(context.Background(), config.DatabaseConnection{Table: "kv; DROP TABLE x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid kv table name")
}
