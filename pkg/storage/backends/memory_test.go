package backends

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/storage"
)

func TestMemoryBackend(t *testing.T) {
	runObjectStoreSuite(t, NewMemoryBackend())
}

func TestMemoryBackendRegistered(t *testing.T) {
	assert.Contains(t, storage.GetRegisteredBackends(), storage.BackendTypeMemory)
	assert.Contains(t, storage.GetRegisteredBackends(), storage.BackendTypeIPFS)
	assert.Contains(t, storage.GetRegisteredBackends(), storage.BackendTypeMinIO)

	store, err := storage.CreateBackend(&storage.BackendConfig{Type: storage.BackendTypeMemory})
	require.NoError(t, err)
	assert.Equal(t, storage.BackendTypeMemory, store.Name())
}

func TestMemoryBackendCopiesData(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	data := []byte("abc")
	require.NoError(t, m.Put(ctx, "objects/k", data))
	data[0] = 'z'

	got, err := m.Get(ctx, "objects/k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'z'
	again, err := m.Get(ctx, "objects/k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryBackendFailure(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	m.FailWith = storage.NewConnectionError(storage.BackendTypeMemory, errors.New("offline"))

	err := m.Put(ctx, "objects/k", []byte("x"))
	assert.ErrorIs(t, err, vaulterr.ErrStorageUnavailable)
	assert.False(t, m.HealthCheck(ctx).Healthy)
}

func TestMemoryBackendCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryBackend().Get(ctx, "objects/k")
	assert.ErrorIs(t, err, vaulterr.ErrStorageUnavailable)
}

func TestMemoryBackendCorrupt(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	require.NoError(t, m.Put(ctx, "objects/k", []byte{0x00}))

	assert.True(t, m.Corrupt("objects/k", 0))
	assert.False(t, m.Corrupt("objects/k", 5))

	got, err := m.Get(ctx, "objects/k")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, got)
	assert.Equal(t, 1, m.Len())
}
