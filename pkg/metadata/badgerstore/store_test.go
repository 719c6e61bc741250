package badgerstore

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata/metadatatest"
)

func newTestStore(t *testing.T) metadata.Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := Open(StoreConfig{InMemory: true, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStoreSuite(t *testing.T) {
	metadatatest.RunStoreSuite(t, newTestStore)
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(StoreConfig{Path: dir})
	require.NoError(t, err)

	resource := metadatatest.NewResource("durable", "alice")
	require.NoError(t, store.CreateResource(ctx, resource))
	require.NoError(t, store.CreateRecord(ctx, metadatatest.NewRecord(resource.ID, 1, 64)))
	require.NoError(t, store.Close())

	reopened, err := Open(StoreConfig{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetResource(ctx, resource.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.SealedSecret, got.SealedSecret)
	assert.Equal(t, int64(1), got.ObjectCount)
	assert.Equal(t, int64(64), got.TotalBytes)
}

func TestBadgerStoreRejectsDuplicateResource(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	resource := metadatatest.NewResource("dup", "alice")
	require.NoError(t, store.CreateResource(ctx, resource))
	assert.ErrorIs(t, store.CreateResource(ctx, resource), vaulterr.ErrInvalidInput)
}

func TestBadgerStoreClosed(t *testing.T) {
	store, err := Open(StoreConfig{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Ping(context.Background()), vaulterr.ErrStorageUnavailable)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(StoreConfig{})
	assert.ErrorIs(t, err, vaulterr.ErrInvalidInput)
}
