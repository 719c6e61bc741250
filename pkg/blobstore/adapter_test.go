package blobstore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/core/crypto"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata/badgerstore"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata/metadatatest"
	"github.com/TheEntropyCollective/mediavault/pkg/storage"
	"github.com/TheEntropyCollective/mediavault/pkg/storage/backends"
)

// staticSecrets hands out copies so the adapter may zero them.
type staticSecrets map[string][]byte

func (s staticSecrets) ResourceSecret(_ context.Context, resourceID string) ([]byte, error) {
	secret, ok := s[resourceID]
	if !ok {
		return nil, vaulterr.ErrResourceNotFound
	}
	return append([]byte(nil), secret...), nil
}

type fixture struct {
	adapter  *Adapter
	objects  *backends.MemoryBackend
	records  metadata.Store
	resource *metadata.Resource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	records, err := badgerstore.Open(badgerstore.StoreConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	resource := metadatatest.NewResource("profile", "owner")
	require.NoError(t, records.CreateResource(context.Background(), resource))

	secret, err := crypto.GenerateSecret()
	require.NoError(t, err)

	objects := backends.NewMemoryBackend()
	adapter := NewAdapter(objects, records, staticSecrets{resource.ID: secret}, Config{Timeout: time.Second})

	return &fixture{adapter: adapter, objects: objects, records: records, resource: resource}
}

func TestStoreAndRetrieveHello(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.adapter.Store(ctx, f.resource.ID, []byte("hello"), "image/jpeg", 1)
	require.NoError(t, err)

	assert.Equal(t, int64(5), record.Metadata.OriginalByteLength)
	assert.Equal(t, "image/jpeg", record.Metadata.OriginalContentType)
	assert.NotContains(t, record.ObjectKey, ".jpg")
	assert.NotContains(t, record.ObjectKey, "jpeg")
	assert.True(t, strings.HasPrefix(record.ObjectKey, ObjectKeyPrefix))
	assert.Equal(t, int64(5+16), record.CiphertextLength)

	stored, err := f.records.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ObjectKey, stored.ObjectKey)

	raw, err := f.objects.Get(ctx, record.ObjectKey)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("hello")))

	plaintext, err := f.adapter.Retrieve(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plaintext)
}

func TestObjectKeysAreUniqueAndTimed(t *testing.T) {
	before := time.Now().Add(-time.Second)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := NewObjectKey()
		require.NoError(t, err)
		require.False(t, seen[key])
		seen[key] = true

		created, ok := ObjectKeyTime(key)
		require.True(t, ok)
		assert.True(t, created.After(before))
	}

	_, ok := ObjectKeyTime("objects/not-a-uuid")
	assert.False(t, ok)
	_, ok = ObjectKeyTime("elsewhere/0190b5c4a1f07c3e8d2b6e8f9a0b1c2d")
	assert.False(t, ok)
}

func TestRetrieveTamperedObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.adapter.Store(ctx, f.resource.ID, []byte("private footage"), "video/mp4", 1)
	require.NoError(t, err)
	require.True(t, f.objects.Corrupt(record.ObjectKey, 3))

	_, err = f.adapter.Retrieve(ctx, record)
	assert.ErrorIs(t, err, vaulterr.ErrAuthenticationFailure)
	assert.False(t, vaulterr.IsRetryable(err))
}

func TestRetrieveMissingObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.adapter.Store(ctx, f.resource.ID, []byte("x"), "image/png", 1)
	require.NoError(t, err)
	require.NoError(t, f.objects.Delete(ctx, record.ObjectKey))

	_, err = f.adapter.Retrieve(ctx, record)
	assert.ErrorIs(t, err, vaulterr.ErrObjectNotFound)
}

func TestStoreUnknownResource(t *testing.T) {
	f := newFixture(t)
	_, err := f.adapter.Store(context.Background(), "missing", []byte("x"), "image/png", 1)
	assert.ErrorIs(t, err, vaulterr.ErrResourceNotFound)
	assert.Zero(t, f.objects.Len())
}

func TestStoreUnavailableBackend(t *testing.T) {
	f := newFixture(t)
	f.objects.FailWith = storage.NewConnectionError(storage.BackendTypeMemory, errors.New("refused"))

	_, err := f.adapter.Store(context.Background(), f.resource.ID, []byte("x"), "image/png", 1)
	assert.ErrorIs(t, err, vaulterr.ErrStorageUnavailable)

	records, err := f.records.ListRecords(context.Background(), f.resource.ID)
	require.NoError(t, err)
	assert.Empty(t, records, "no record may reference an unwritten object")
}

// failingRecords rejects every record write.
type failingRecords struct {
	metadata.RecordStore
}

func (failingRecords) CreateRecord(context.Context, *metadata.ObjectRecord) error {
	return vaulterr.ErrStorageUnavailable
}

func TestStoreDiscardsObjectWhenRecordFails(t *testing.T) {
	f := newFixture(t)
	secrets := f.adapter.secrets
	adapter := NewAdapter(f.objects, failingRecords{f.records}, secrets, Config{Timeout: time.Second})

	_, err := adapter.Store(context.Background(), f.resource.ID, []byte("x"), "image/png", 1)
	assert.ErrorIs(t, err, vaulterr.ErrStorageUnavailable)
	assert.Zero(t, f.objects.Len())
}

// stallingStore blocks every call until the context ends.
type stallingStore struct {
	storage.ObjectStore
}

func (stallingStore) Put(ctx context.Context, _ string, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stallingStore) Get(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTimeoutIsStorageUnavailable(t *testing.T) {
	f := newFixture(t)
	adapter := NewAdapter(stallingStore{f.objects}, f.records, f.adapter.secrets, Config{Timeout: 20 * time.Millisecond})

	_, err := adapter.Store(context.Background(), f.resource.ID, []byte("x"), "image/png", 1)
	assert.ErrorIs(t, err, vaulterr.ErrStorageUnavailable)

	_, err = adapter.Retrieve(context.Background(), &metadata.ObjectRecord{
		ID: "r", ObjectKey: "objects/abc", ResourceID: f.resource.ID,
	})
	assert.ErrorIs(t, err, vaulterr.ErrStorageUnavailable)
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.adapter.Store(ctx, f.resource.ID, []byte("x"), "image/png", 1)
	require.NoError(t, err)

	require.NoError(t, f.adapter.Remove(ctx, record))
	assert.Zero(t, f.objects.Len())

	// Removing again is fine: the object is already gone.
	require.NoError(t, f.adapter.Remove(ctx, record))

	f.objects.FailWith = storage.NewConnectionError(storage.BackendTypeMemory, errors.New("refused"))
	assert.ErrorIs(t, f.adapter.Remove(ctx, record), vaulterr.ErrStorageUnavailable)
}
