package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
)

// timeoutStore bounds every call to the wrapped store.
type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout wraps store so that every call runs under its own deadline.
// A call that exceeds it fails with vaulterr.ErrStorageUnavailable.
func WithTimeout(store Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return store
	}
	return &timeoutStore{next: store, timeout: timeout}
}

func call[T any](ctx context.Context, s *timeoutStore, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, vaulterr.ErrStorageUnavailable) {
		err = fmt.Errorf("%s: %w: %w", op, vaulterr.ErrStorageUnavailable, err)
	}
	return result, err
}

func exec(ctx context.Context, s *timeoutStore, op string, fn func(ctx context.Context) error) error {
	_, err := call(ctx, s, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (s *timeoutStore) CreateResource(ctx context.Context, resource *Resource) error {
	return exec(ctx, s, "create resource", func(ctx context.Context) error {
		return s.next.CreateResource(ctx, resource)
	})
}

func (s *timeoutStore) GetResource(ctx context.Context, id string) (*Resource, error) {
	return call(ctx, s, "get resource", func(ctx context.Context) (*Resource, error) {
		return s.next.GetResource(ctx, id)
	})
}

func (s *timeoutStore) ListResources(ctx context.Context) ([]*Resource, error) {
	return call(ctx, s, "list resources", s.next.ListResources)
}

func (s *timeoutStore) DeleteResource(ctx context.Context, id string) error {
	return exec(ctx, s, "delete resource", func(ctx context.Context) error {
		return s.next.DeleteResource(ctx, id)
	})
}

func (s *timeoutStore) CreateRecord(ctx context.Context, record *ObjectRecord) error {
	return exec(ctx, s, "create record", func(ctx context.Context) error {
		return s.next.CreateRecord(ctx, record)
	})
}

func (s *timeoutStore) GetRecord(ctx context.Context, id string) (*ObjectRecord, error) {
	return call(ctx, s, "get record", func(ctx context.Context) (*ObjectRecord, error) {
		return s.next.GetRecord(ctx, id)
	})
}

func (s *timeoutStore) ListRecords(ctx context.Context, resourceID string) ([]*ObjectRecord, error) {
	return call(ctx, s, "list records", func(ctx context.Context) ([]*ObjectRecord, error) {
		return s.next.ListRecords(ctx, resourceID)
	})
}

func (s *timeoutStore) DeleteRecord(ctx context.Context, id string) error {
	return exec(ctx, s, "delete record", func(ctx context.Context) error {
		return s.next.DeleteRecord(ctx, id)
	})
}

func (s *timeoutStore) MaxOrder(ctx context.Context, resourceID string) (int, error) {
	return call(ctx, s, "max order", func(ctx context.Context) (int, error) {
		return s.next.MaxOrder(ctx, resourceID)
	})
}

func (s *timeoutStore) ListObjectKeys(ctx context.Context) ([]string, error) {
	return call(ctx, s, "list object keys", s.next.ListObjectKeys)
}

func (s *timeoutStore) UpsertGrant(ctx context.Context, grant *AccessGrant) error {
	return exec(ctx, s, "upsert grant", func(ctx context.Context) error {
		return s.next.UpsertGrant(ctx, grant)
	})
}

func (s *timeoutStore) GetGrant(ctx context.Context, userID, resourceID string) (*AccessGrant, error) {
	return call(ctx, s, "get grant", func(ctx context.Context) (*AccessGrant, error) {
		return s.next.GetGrant(ctx, userID, resourceID)
	})
}

func (s *timeoutStore) DeleteGrant(ctx context.Context, userID, resourceID string) error {
	return exec(ctx, s, "delete grant", func(ctx context.Context) error {
		return s.next.DeleteGrant(ctx, userID, resourceID)
	})
}

func (s *timeoutStore) ListGrants(ctx context.Context, resourceID string) ([]*AccessGrant, error) {
	return call(ctx, s, "list grants", func(ctx context.Context) ([]*AccessGrant, error) {
		return s.next.ListGrants(ctx, resourceID)
	})
}

func (s *timeoutStore) ListUserGrants(ctx context.Context, userID string) ([]*AccessGrant, error) {
	return call(ctx, s, "list user grants", func(ctx context.Context) ([]*AccessGrant, error) {
		return s.next.ListUserGrants(ctx, userID)
	})
}

func (s *timeoutStore) Ping(ctx context.Context) error {
	return exec(ctx, s, "ping", s.next.Ping)
}

func (s *timeoutStore) Close() error {
	return s.next.Close()
}
