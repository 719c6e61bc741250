package storage

import (
	"context"
	"errors"
	"time"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
)

// ObjectStore is the opaque key/value store that holds ciphertext objects.
// Keys are generated by the caller and carry no meaning to the backend.
// Backends never see plaintext, filenames or content types.
type ObjectStore interface {
	// Put stores data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object stored under key. A missing object is reported
	// as a StorageError with code ErrCodeNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object stored under key. Deleting a missing object
	// is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// HealthCheck probes the backend.
	HealthCheck(ctx context.Context) *HealthStatus

	// Name returns the backend type.
	Name() string
}

// ObjectInfo describes a stored object without its contents
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified,omitempty"`
}

// HealthStatus represents the health status of a storage backend
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Status    string        `json:"status"` // "healthy", "unhealthy", "offline"
	Latency   time.Duration `json:"latency"`
	LastCheck time.Time     `json:"last_check"`
	Issues    []string      `json:"issues,omitempty"`
}

// NewHealthStatus builds a HealthStatus from the outcome of a probe that
// started at start.
func NewHealthStatus(start time.Time, err error) *HealthStatus {
	status := &HealthStatus{
		Healthy:   err == nil,
		Status:    "healthy",
		Latency:   time.Since(start),
		LastCheck: time.Now(),
	}
	if err != nil {
		status.Status = "unhealthy"
		status.Issues = []string{err.Error()}
	}
	return status
}

// StorageError represents errors from storage operations
type StorageError struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	BackendType string                 `json:"backend_type"`
	Key         string                 `json:"key,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Cause       error                  `json:"-"`
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is maps storage codes onto the shared error taxonomy so callers can test
// with errors.Is(err, vaulterr.ErrObjectNotFound) or vaulterr.ErrStorageUnavailable.
func (e *StorageError) Is(target error) bool {
	switch target {
	case vaulterr.ErrObjectNotFound:
		return e.Code == ErrCodeNotFound
	case vaulterr.ErrStorageUnavailable:
		return e.IsTransient()
	case vaulterr.ErrInvalidInput:
		return e.Code == ErrCodeInvalidRequest
	}
	return false
}

// IsTransient reports whether retrying the operation may succeed.
func (e *StorageError) IsTransient() bool {
	switch e.Code {
	case ErrCodeConnectionFailed, ErrCodeTimeout, ErrCodeBackendOffline, ErrCodeUnknown:
		return true
	}
	return false
}

// Common error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"         // Object not found
	ErrCodeConnectionFailed = "CONNECTION_FAILED" // Network/connection issues
	ErrCodeTimeout          = "TIMEOUT"           // Operation timed out
	ErrCodeBackendOffline   = "BACKEND_OFFLINE"   // Backend is not available
	ErrCodeUnauthorized     = "UNAUTHORIZED"      // Backend rejected our credentials
	ErrCodeInvalidRequest   = "INVALID_REQUEST"   // Invalid key or configuration
	ErrCodeUnknown          = "UNKNOWN_ERROR"
)

// Backend type constants
const (
	BackendTypeMemory = "memory"
	BackendTypeIPFS   = "ipfs"
	BackendTypeMinIO  = "minio"
)

// Helper functions for creating storage errors
func NewStorageError(code, message, backendType string, cause error) *StorageError {
	return &StorageError{
		Code:        code,
		Message:     message,
		BackendType: backendType,
		Cause:       cause,
		Metadata:    make(map[string]interface{}),
	}
}

func NewNotFoundError(backendType string, key string) *StorageError {
	return &StorageError{
		Code:        ErrCodeNotFound,
		Message:     "object not found",
		BackendType: backendType,
		Key:         key,
	}
}

func NewConnectionError(backendType string, cause error) *StorageError {
	return &StorageError{
		Code:        ErrCodeConnectionFailed,
		Message:     "failed to connect to storage backend",
		BackendType: backendType,
		Cause:       cause,
	}
}

func NewInvalidRequestError(backendType string, message string, cause error) *StorageError {
	return &StorageError{
		Code:        ErrCodeInvalidRequest,
		Message:     message,
		BackendType: backendType,
		Cause:       cause,
	}
}

// IsNotFound reports whether err is a StorageError with code ErrCodeNotFound.
func IsNotFound(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr) && storageErr.Code == ErrCodeNotFound
}

// ValidateKey rejects keys a backend cannot address safely.
func ValidateKey(backendType, key string) error {
	if key == "" {
		return NewInvalidRequestError(backendType, "object key cannot be empty", nil)
	}
	if key[0] == '/' {
		return NewInvalidRequestError(backendType, "object key must be relative", nil)
	}
	for i := 0; i+1 < len(key); i++ {
		if key[i] == '.' && key[i+1] == '.' {
			return NewInvalidRequestError(backendType, "object key cannot contain '..'", nil)
		}
	}
	return nil
}
