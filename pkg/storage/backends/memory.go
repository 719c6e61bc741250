package backends

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TheEntropyCollective/mediavault/pkg/storage"
)

func init() {
	storage.RegisterBackend(storage.BackendTypeMemory, func(config *storage.BackendConfig) (storage.ObjectStore, error) {
		return NewMemoryBackend(), nil
	})
}

type memoryObject struct {
	data     []byte
	modified time.Time
}

// MemoryBackend keeps objects in process memory. It is used by tests and
// single-node development setups.
type MemoryBackend struct {
	data  map[string]memoryObject
	mutex sync.RWMutex

	// FailWith, when set, is returned by every operation. Tests use it to
	// simulate an unavailable backend.
	FailWith error
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]memoryObject),
	}
}

func (m *MemoryBackend) Name() string {
	return storage.BackendTypeMemory
}

// Put stores a copy of data under key
func (m *MemoryBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := m.check(ctx, key); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.data[key] = memoryObject{
		data:     append([]byte(nil), data...),
		modified: time.Now(),
	}
	return nil
}

// Get returns a copy of the object stored under key
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.check(ctx, key); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	obj, exists := m.data[key]
	if !exists {
		return nil, storage.NewNotFoundError(storage.BackendTypeMemory, key)
	}
	return append([]byte(nil), obj.data...), nil
}

// Delete removes an object
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	if err := m.check(ctx, key); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.data, key)
	return nil
}

// List returns objects whose key starts with prefix, sorted by key
func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	infos := make([]storage.ObjectInfo, 0)
	for key, obj := range m.data {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, storage.ObjectInfo{
				Key:          key,
				Size:         int64(len(obj.data)),
				LastModified: obj.modified,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// HealthCheck always reports healthy unless FailWith is set
func (m *MemoryBackend) HealthCheck(ctx context.Context) *storage.HealthStatus {
	return storage.NewHealthStatus(time.Now(), m.FailWith)
}

// Len returns the number of stored objects
func (m *MemoryBackend) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.data)
}

// Corrupt flips one bit of the stored object. Tests use it to simulate
// tampering at rest.
func (m *MemoryBackend) Corrupt(key string, offset int) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	obj, exists := m.data[key]
	if !exists || offset >= len(obj.data) {
		return false
	}
	obj.data[offset] ^= 0x01
	return true
}

func (m *MemoryBackend) check(ctx context.Context, key string) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	if err := ctx.Err(); err != nil {
		return storage.NewErrorClassifier(storage.BackendTypeMemory).ClassifyError(err, "request", key)
	}
	return storage.ValidateKey(storage.BackendTypeMemory, key)
}
