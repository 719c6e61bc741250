package backends

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/TheEntropyCollective/mediavault/pkg/storage"
)

func init() {
	storage.RegisterBackend(storage.BackendTypeMinIO, func(config *storage.BackendConfig) (storage.ObjectStore, error) {
		return NewMinIOBackend(config)
	})
}

// MinIOBackend stores objects in an S3-compatible bucket
type MinIOBackend struct {
	client          *minio.Client
	bucket          string
	timeout         time.Duration
	errorClassifier *storage.ErrorClassifier
}

// NewMinIOBackend creates a client and makes sure the bucket exists
func NewMinIOBackend(config *storage.BackendConfig) (*MinIOBackend, error) {
	if config.Type != storage.BackendTypeMinIO {
		return nil, fmt.Errorf("invalid backend type: expected %s, got %s", storage.BackendTypeMinIO, config.Type)
	}
	if config.Endpoint == "" || config.Bucket == "" {
		return nil, storage.NewInvalidRequestError(storage.BackendTypeMinIO, "endpoint and bucket are required", nil)
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, storage.NewConnectionError(storage.BackendTypeMinIO, err)
	}

	backend := &MinIOBackend{
		client:          client,
		bucket:          config.Bucket,
		timeout:         config.Timeout,
		errorClassifier: storage.NewErrorClassifier(storage.BackendTypeMinIO),
	}

	ctx := context.Background()
	if backend.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, backend.timeout)
		defer cancel()
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, backend.classify(err, "connect", "")
	}
	if !exists {
		if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region}); err != nil {
			return nil, backend.classify(err, "make bucket", "")
		}
	}

	return backend, nil
}

func (m *MinIOBackend) Name() string {
	return storage.BackendTypeMinIO
}

func (m *MinIOBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	// List stops minio-go's listing goroutine by cancelling.
	return context.WithCancel(ctx)
}

// classify maps S3 error codes before falling back to string matching
func (m *MinIOBackend) classify(err error, operation, key string) *storage.StorageError {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey":
		return storage.NewNotFoundError(storage.BackendTypeMinIO, key)
	case "NoSuchBucket":
		return storage.NewStorageError(storage.ErrCodeBackendOffline, operation+": bucket missing", storage.BackendTypeMinIO, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return storage.NewStorageError(storage.ErrCodeUnauthorized, operation+": authentication failed", storage.BackendTypeMinIO, err)
	}
	return m.errorClassifier.ClassifyError(err, operation, key)
}

// Put uploads data under key
func (m *MinIOBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := storage.ValidateKey(storage.BackendTypeMinIO, key); err != nil {
		return err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return m.classify(err, "put", key)
	}
	return nil
}

// Get downloads the object stored under key
func (m *MinIOBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := storage.ValidateKey(storage.BackendTypeMinIO, key); err != nil {
		return nil, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.classify(err, "get", key)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.classify(err, "get", key)
	}
	return data, nil
}

// Delete removes the object. S3 treats deleting a missing key as success.
func (m *MinIOBackend) Delete(ctx context.Context, key string) error {
	if err := storage.ValidateKey(storage.BackendTypeMinIO, key); err != nil {
		return err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		storageErr := m.classify(err, "delete", key)
		if storageErr.Code == storage.ErrCodeNotFound {
			return nil
		}
		return storageErr
	}
	return nil
}

// List returns every object under prefix
func (m *MinIOBackend) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	infos := make([]storage.ObjectInfo, 0)
	for object := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, m.classify(object.Err, "list", prefix)
		}
		infos = append(infos, storage.ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return infos, nil
}

// HealthCheck verifies the bucket is reachable
func (m *MinIOBackend) HealthCheck(ctx context.Context) *storage.HealthStatus {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return storage.NewHealthStatus(start, m.classify(err, "health", ""))
	}
	if !exists {
		return storage.NewHealthStatus(start, fmt.Errorf("bucket %s does not exist", m.bucket))
	}
	return storage.NewHealthStatus(start, nil)
}
