package catalog_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) catalog.Store

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	t.Run(name+"/Save_and_Load", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		data := []byte(`{"path": "l1/Ckpt1-Rank0.fti"}`)
		require.NoError(t, store.Save("exec-1", 0, 1, data))

		loaded, err := store.Load("exec-1", 0)
		require.NoError(t, err)
		assert.Equal(t, data, loaded)
	})

	t.Run(name+"/Load_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Load("exec-nonexistent", 3)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run(name+"/Save_KeepsLast", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("exec-1", 2, 6, []byte("sixth")))
		require.NoError(t, store.Save("exec-1", 2, 7, []byte("seventh")))

		loaded, err := store.Load("exec-1", 2)
		require.NoError(t, err)
		assert.Equal(t, []byte("seventh"), loaded)

		infos, err := store.List("exec-1")
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, 7, infos[0].Sequence)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		infos, err := store.List("exec-nonexistent")
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run(name+"/List_OrderedByRank", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("exec-1", 2, 3, []byte("ccc")))
		require.NoError(t, store.Save("exec-1", 0, 4, []byte("a")))
		require.NoError(t, store.Save("exec-1", 1, 4, []byte("bb")))

		infos, err := store.List("exec-1")
		require.NoError(t, err)
		require.Len(t, infos, 3)

		for i, info := range infos {
			assert.Equal(t, i, info.Rank)
			assert.Equal(t, "exec-1", info.ExecID)
			assert.Equal(t, int64(i+1), info.Size)
			assert.False(t, info.Timestamp.IsZero())
		}
		assert.Equal(t, 4, infos[0].Sequence)
		assert.Equal(t, 3, infos[2].Sequence)
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("exec-1", 0, 1, []byte("data")))
		require.NoError(t, store.Delete("exec-1", 0))

		_, err := store.Load("exec-1", 0)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run(name+"/Delete_Nonexistent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.NoError(t, store.Delete("exec-nonexistent", 9))
	})

	t.Run(name+"/DeleteRun", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("exec-1", 0, 1, []byte("a")))
		require.NoError(t, store.Save("exec-1", 1, 1, []byte("b")))
		require.NoError(t, store.Save("exec-2", 0, 1, []byte("other")))

		require.NoError(t, store.DeleteRun("exec-1"))

		infos, err := store.List("exec-1")
		require.NoError(t, err)
		assert.Empty(t, infos)

		infos, err = store.List("exec-2")
		require.NoError(t, err)
		assert.Len(t, infos, 1)
	})

	t.Run(name+"/DataCopy", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		original := []byte("original data")
		require.NoError(t, store.Save("exec-1", 0, 1, original))
		original[0] = 'X'

		loaded, err := store.Load("exec-1", 0)
		require.NoError(t, err)
		assert.Equal(t, []byte("original data"), loaded)
	})

	t.Run(name+"/Close_ThenError", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		assert.ErrorIs(t, store.Save("exec-1", 0, 1, []byte("data")), catalog.ErrStoreClosed)

		_, err := store.Load("exec-1", 0)
		assert.ErrorIs(t, err, catalog.ErrStoreClosed)

		_, err = store.List("exec-1")
		assert.ErrorIs(t, err, catalog.ErrStoreClosed)

		assert.ErrorIs(t, store.Delete("exec-1", 0), catalog.ErrStoreClosed)
		assert.ErrorIs(t, store.DeleteRun("exec-1"), catalog.ErrStoreClosed)
	})

	t.Run(name+"/ConcurrentRanks", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		const ranks = 8
		var wg sync.WaitGroup
		for r := 0; r < ranks; r++ {
			wg.Add(1)
			go func(rank int) {
				defer wg.Done()
				for seq := 1; seq <= 12; seq++ {
					assert.NoError(t, store.Save("exec-1", rank, seq, []byte{byte(seq)}))
				}
			}(r)
		}
		wg.Wait()

		infos, err := store.List("exec-1")
		require.NoError(t, err)
		require.Len(t, infos, ranks)
		for _, info := range infos {
			assert.Equal(t, 12, info.Sequence)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeContractTest(t, "MemoryStore", func(t *testing.T) catalog.Store {
		return catalog.NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContractTest(t, "SQLiteStore", func(t *testing.T) catalog.Store {
		store, err := catalog.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	})
}

func TestSQLiteStore_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	store1, err := catalog.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store1.Save("exec-1", 3, 7, []byte("persistent")))
	require.NoError(t, store1.Close())

	store2, err := catalog.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	data, err := store2.Load("exec-1", 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("persistent"), data)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := catalog.NewSQLiteStore("/nonexistent/path/catalog.db")
	assert.Error(t, err)
}

func TestSQLiteStore_CloseIdempotent(t *testing.T) {
	store, err := catalog.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestOpen(t *testing.T) {
	store, err := catalog.Open("")
	require.NoError(t, err)
	assert.IsType(t, &catalog.MemoryStore{}, store)
	require.NoError(t, store.Close())

	store, err = catalog.Open(filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	assert.IsType(t, &catalog.SQLiteStore{}, store)
	require.NoError(t, store.Close())
}
