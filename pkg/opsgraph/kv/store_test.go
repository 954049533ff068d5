package kv_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) kv.Store

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Put_and_Get", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		value := []byte(`{"key": "value"}`)
		err := store.Put(ctx, "policies", "net-001", value)
		require.NoError(t, err)

		got, err := store.Get(ctx, "policies", "net-001")
		require.NoError(t, err)
		assert.Equal(t, value, got)
	})

	t.Run(name+"/Get_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Get(ctx, "policies", "missing")
		assert.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run(name+"/Put_Overwrite", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Put(ctx, "sessions", "s1", []byte("first")))
		require.NoError(t, store.Put(ctx, "sessions", "s1", []byte("second")))

		got, err := store.Get(ctx, "sessions", "s1")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		items, err := store.List(ctx, "empty-table")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run(name+"/List_OrderedByKey", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Put(ctx, "policies", "c", []byte("3")))
		require.NoError(t, store.Put(ctx, "policies", "a", []byte("1")))
		require.NoError(t, store.Put(ctx, "policies", "b", []byte("2")))

		items, err := store.List(ctx, "policies")
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "a", items[0].Key)
		assert.Equal(t, "b", items[1].Key)
		assert.Equal(t, "c", items[2].Key)
		assert.False(t, items[0].UpdatedAt.IsZero())
	})

	t.Run(name+"/List_IsolatedByTable", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Put(ctx, "policies", "p1", []byte("x")))
		require.NoError(t, store.Put(ctx, "sessions", "s1", []byte("y")))

		items, err := store.List(ctx, "policies")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "p1", items[0].Key)
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Put(ctx, "policies", "p1", []byte("x")))
		require.NoError(t, store.Delete(ctx, "policies", "p1"))

		_, err := store.Get(ctx, "policies", "p1")
		assert.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run(name+"/Delete_Missing_IsNil", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.NoError(t, store.Delete(ctx, "policies", "never-existed"))
	})

	t.Run(name+"/Closed_Store_Errors", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		err := store.Put(ctx, "t", "k", []byte("v"))
		assert.ErrorIs(t, err, kv.ErrStoreClosed)

		_, err = store.Get(ctx, "t", "k")
		assert.ErrorIs(t, err, kv.ErrStoreClosed)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContractTest(t, "memory", func(t *testing.T) kv.Store {
		return kv.NewMemoryStore()
	})
}

func TestSQLiteStore_Contract(t *testing.T) {
	storeContractTest(t, "sqlite", func(t *testing.T) kv.Store {
		store, err := kv.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		return store
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	store, err := kv.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "policies", "p1", []byte("kept")))
	require.NoError(t, store.Close())

	reopened, err := kv.NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "policies", "p1")
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), got)
}

func TestMemoryStore_Len(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	defer store.Close()

	assert.Equal(t, 0, store.Len())
	require.NoError(t, store.Put(ctx, "a", "1", []byte("x")))
	require.NoError(t, store.Put(ctx, "a", "2", []byte("y")))
	require.NoError(t, store.Put(ctx, "b", "1", []byte("z")))
	assert.Equal(t, 3, store.Len())
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	defer store.Close()

	value := []byte("original")
	require.NoError(t, store.Put(ctx, "t", "k", value))
	value[0] = 'X'

	got, err := store.Get(ctx, "t", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}
