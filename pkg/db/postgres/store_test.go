package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/db"
)

// startPostgres returns a DSN for a throwaway database. DISPUTE_TEST_PG_DSN
// reuses an existing database instead of starting a container.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	if dsn := os.Getenv("DISPUTE_TEST_PG_DSN"); dsn != "" {
		return dsn
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16",
		tcpostgres.WithDatabase("disputes"),
		tcpostgres.WithUsername("disputes"),
		tcpostgres.WithPassword("disputes"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresKVStore(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	t.Run("put_get_delete", func(t *testing.T) {
		require.NoError(t, store.Put([]byte("k1"), []byte("v1")))
		require.NoError(t, store.Put([]byte("k1"), []byte("v2")))

		value, err := store.Get([]byte("k1"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), value)

		require.NoError(t, store.Delete([]byte("k1")))
		_, err = store.Get([]byte("k1"))
		assert.ErrorIs(t, err, db.ErrNotFound)
	})

	t.Run("batch_is_atomic", func(t *testing.T) {
		batch := store.NewBatch()
		require.NoError(t, batch.Put([]byte{2, 0}, []byte("a")))
		require.NoError(t, batch.Put([]byte{2, 1}, []byte("b")))

		_, err := store.Get([]byte{2, 0})
		assert.ErrorIs(t, err, db.ErrNotFound)

		require.NoError(t, batch.Commit())
		assert.ErrorIs(t, batch.Commit(), db.ErrBatchDone)

		value, err := store.Get([]byte{2, 1})
		require.NoError(t, err)
		assert.Equal(t, []byte("b"), value)
	})

	t.Run("iterator_is_ordered_and_bounded", func(t *testing.T) {
		for _, k := range [][]byte{{3, 9}, {3, 1}, {3, 5}, {4, 0}} {
			require.NoError(t, store.Put(k, k))
		}
		iter, err := store.NewIterator([]byte{3}, []byte{4})
		require.NoError(t, err)
		defer iter.Close() //nolint:errcheck

		var keys [][]byte
		for iter.Next() {
			keys = append(keys, iter.Key())
		}
		assert.Equal(t, [][]byte{{3, 1}, {3, 5}, {3, 9}}, keys)
		assert.False(t, iter.Valid())
	})

	t.Run("closed_store", func(t *testing.T) {
		closing, err := Open(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, closing.Close())

		_, err = closing.Get([]byte("k"))
		assert.ErrorIs(t, err, db.ErrClosed)
		assert.NoError(t, closing.Close())
	})
}
