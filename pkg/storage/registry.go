package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// BackendConfig configures one object store backend
type BackendConfig struct {
	// Backend type (memory, ipfs, minio)
	Type string `json:"type"`

	// Endpoint is the API address of the backend service
	Endpoint string `json:"endpoint,omitempty"`

	// RootPath is the MFS directory objects live under (ipfs)
	RootPath string `json:"root_path,omitempty"`

	// Bucket, Region and credentials (minio)
	Bucket    string `json:"bucket,omitempty"`
	Region    string `json:"region,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"-"`
	UseSSL    bool   `json:"use_ssl"`

	// Timeout bounds every request to the backend service
	Timeout time.Duration `json:"timeout"`
}

// BackendConstructor is a function that creates a new backend instance
type BackendConstructor func(config *BackendConfig) (ObjectStore, error)

// backendRegistry holds registered backend constructors
var backendRegistry = struct {
	sync.RWMutex
	constructors map[string]BackendConstructor
}{
	constructors: make(map[string]BackendConstructor),
}

// RegisterBackend registers a backend constructor
func RegisterBackend(backendType string, constructor BackendConstructor) {
	backendRegistry.Lock()
	defer backendRegistry.Unlock()

	backendRegistry.constructors[backendType] = constructor
}

// CreateBackend creates a backend instance using the registered constructor
func CreateBackend(config *BackendConfig) (ObjectStore, error) {
	if config == nil {
		return nil, NewInvalidRequestError("registry", "backend config is required", nil)
	}

	backendRegistry.RLock()
	constructor, exists := backendRegistry.constructors[config.Type]
	backendRegistry.RUnlock()

	if !exists {
		return nil, NewInvalidRequestError(config.Type, fmt.Sprintf("backend type %s not registered", config.Type), nil)
	}

	return constructor(config)
}

// GetRegisteredBackends returns a sorted list of registered backend types
func GetRegisteredBackends() []string {
	backendRegistry.RLock()
	defer backendRegistry.RUnlock()

	types := make([]string, 0, len(backendRegistry.constructors))
	for backendType := range backendRegistry.constructors {
		types = append(types, backendType)
	}
	sort.Strings(types)

	return types
}
