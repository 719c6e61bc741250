package backends

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/storage"
)

// runObjectStoreSuite exercises the ObjectStore contract against any backend.
func runObjectStoreSuite(t *testing.T, store storage.ObjectStore) {
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		data := []byte{0x00, 0x01, 0xfe, 0xff}
		require.NoError(t, store.Put(ctx, "objects/alpha", data))

		got, err := store.Get(ctx, "objects/alpha")
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "objects/beta", []byte("first version")))
		require.NoError(t, store.Put(ctx, "objects/beta", []byte("v2")))

		got, err := store.Get(ctx, "objects/beta")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("missing object", func(t *testing.T) {
		_, err := store.Get(ctx, "objects/missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, vaulterr.ErrObjectNotFound)
	})

	t.Run("list by prefix", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "objects/gamma", []byte("g")))

		infos, err := store.List(ctx, "objects/")
		require.NoError(t, err)

		keys := make([]string, 0, len(infos))
		for _, info := range infos {
			keys = append(keys, info.Key)
		}
		assert.Contains(t, keys, "objects/alpha")
		assert.Contains(t, keys, "objects/gamma")

		infos, err = store.List(ctx, "objects/gam")
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, "objects/gamma", infos[0].Key)
		assert.Equal(t, int64(1), infos[0].Size)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "objects/alpha"))
		require.NoError(t, store.Delete(ctx, "objects/alpha"))

		_, err := store.Get(ctx, "objects/alpha")
		assert.ErrorIs(t, err, vaulterr.ErrObjectNotFound)
	})

	t.Run("rejects unsafe keys", func(t *testing.T) {
		assert.ErrorIs(t, store.Put(ctx, "../escape", []byte("x")), vaulterr.ErrInvalidInput)
	})

	t.Run("health", func(t *testing.T) {
		assert.True(t, store.HealthCheck(ctx).Healthy)
	})
}

func TestMinIORequestContextIsCancellable(t *testing.T) {
	for _, backend := range []*MinIOBackend{{}, {timeout: time.Minute}} {
		ctx, cancel := backend.withTimeout(context.Background())
		require.NotNil(t, ctx.Done())
		cancel()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	}
}
