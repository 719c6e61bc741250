// Package blobstore stores media as ciphertext objects in an opaque object
// store and keeps the metadata needed to decrypt them in the metadata store.
//
// Object keys are random and never carry a filename, extension or content
// type. The object is always written before its record so that a record
// never references an object that does not exist.
package blobstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/core/crypto"
	"github.com/TheEntropyCollective/mediavault/pkg/infrastructure/logging"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
	"github.com/TheEntropyCollective/mediavault/pkg/storage"
)

// ObjectKeyPrefix is the namespace every ciphertext object lives under.
const ObjectKeyPrefix = "objects/"

// DefaultTimeout bounds each object store call when none is configured.
const DefaultTimeout = 30 * time.Second

// SecretProvider resolves the encryption secret of a resource. Callers zero
// the returned slice when done with it.
type SecretProvider interface {
	ResourceSecret(ctx context.Context, resourceID string) ([]byte, error)
}

// Config configures an Adapter
type Config struct {
	// Timeout bounds every individual object store call
	Timeout time.Duration
	Logger  *logging.Logger
}

// Adapter is the encrypted blob store.
type Adapter struct {
	objects storage.ObjectStore
	records metadata.RecordStore
	secrets SecretProvider
	timeout time.Duration
	logger  *logging.Logger
	now     func() time.Time
}

// NewAdapter creates an adapter writing ciphertext to objects and records to records.
func NewAdapter(objects storage.ObjectStore, records metadata.RecordStore, secrets SecretProvider, config Config) *Adapter {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = logging.GetGlobalLogger()
	}
	return &Adapter{
		objects: objects,
		records: records,
		secrets: secrets,
		timeout: config.Timeout,
		logger:  config.Logger.WithComponent("blobstore"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewObjectKey returns a fresh object key. Keys are time-ordered UUIDv7 values
// in hex so the sweeper can tell the age of an object from its key alone.
func NewObjectKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate object key: %w: %w", vaulterr.ErrCryptoFailure, err)
	}
	return ObjectKeyPrefix + strings.ReplaceAll(id.String(), "-", ""), nil
}

// ObjectKeyTime returns the creation time embedded in an object key. ok is
// false for keys not produced by NewObjectKey.
func ObjectKeyTime(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, ObjectKeyPrefix) {
		return time.Time{}, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(key, ObjectKeyPrefix))
	if err != nil || id.Version() != 7 {
		return time.Time{}, false
	}
	ms := int64(binary.BigEndian.Uint64(id[:8]) >> 16)
	return time.UnixMilli(ms).UTC(), true
}

// storeErr maps an object store failure onto the shared taxonomy. Our own
// per-call deadline surfaces as ErrStorageUnavailable.
func storeErr(op, key string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, vaulterr.ErrStorageUnavailable) {
		return fmt.Errorf("%s %s: %w: %w", op, key, vaulterr.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

func (a *Adapter) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return fn(ctx)
}

// Store encrypts plaintext with the resource's secret, writes the ciphertext
// under a fresh key and records it. If recording fails the object is deleted
// again on a best-effort basis.
func (a *Adapter) Store(ctx context.Context, resourceID string, plaintext []byte, declaredContentType string, order int) (*metadata.ObjectRecord, error) {
	secret, err := a.secrets.ResourceSecret(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("resolve secret for %s: %w", resourceID, err)
	}
	defer crypto.SecureZero(secret)

	ciphertext, blobMeta, err := crypto.Encrypt(plaintext, secret)
	if err != nil {
		return nil, err
	}
	blobMeta.OriginalContentType = declaredContentType

	key, err := NewObjectKey()
	if err != nil {
		return nil, err
	}

	err = a.withTimeout(ctx, func(ctx context.Context) error {
		return a.objects.Put(ctx, key, ciphertext)
	})
	if err != nil {
		return nil, storeErr("put object", key, err)
	}

	record := &metadata.ObjectRecord{
		ID:               uuid.NewString(),
		ObjectKey:        key,
		ResourceID:       resourceID,
		CiphertextLength: int64(len(ciphertext)),
		Metadata:         *blobMeta,
		Order:            order,
		CreatedAt:        a.now(),
	}

	if err := a.records.CreateRecord(ctx, record); err != nil {
		a.discard(ctx, key, resourceID)
		return nil, fmt.Errorf("record object for %s: %w", resourceID, err)
	}

	a.logger.WithFields(map[string]interface{}{
		"resource_id": resourceID,
		"record_id":   record.ID,
		"bytes":       record.CiphertextLength,
	}).Debug("stored encrypted object")

	return record, nil
}

// discard removes an object whose record could not be written. It runs
// detached from ctx cancellation because ctx may be the reason we are here.
func (a *Adapter) discard(ctx context.Context, key, resourceID string) {
	err := a.withTimeout(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return a.objects.Delete(ctx, key)
	})
	if err != nil {
		a.logger.WithField("resource_id", resourceID).WithError(err).Warn("failed to discard unrecorded object")
	}
}

// Retrieve downloads and decrypts the object behind record. A missing object
// is vaulterr.ErrObjectNotFound; a failed integrity check is
// vaulterr.ErrAuthenticationFailure.
func (a *Adapter) Retrieve(ctx context.Context, record *metadata.ObjectRecord) ([]byte, error) {
	secret, err := a.secrets.ResourceSecret(ctx, record.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("resolve secret for %s: %w", record.ResourceID, err)
	}
	defer crypto.SecureZero(secret)

	var ciphertext []byte
	err = a.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		ciphertext, err = a.objects.Get(ctx, record.ObjectKey)
		return err
	})
	if err != nil {
		if storage.IsNotFound(err) {
			a.logger.WithFields(map[string]interface{}{
				"resource_id": record.ResourceID,
				"record_id":   record.ID,
			}).Error("ciphertext object missing for record")
			return nil, fmt.Errorf("record %s: %w", record.ID, vaulterr.ErrObjectNotFound)
		}
		return nil, storeErr("get object for record", record.ID, err)
	}

	plaintext, err := crypto.Decrypt(ciphertext, secret, &record.Metadata)
	if err != nil {
		a.logger.WithFields(map[string]interface{}{
			"resource_id": record.ResourceID,
			"record_id":   record.ID,
		}).WithError(err).Error("encrypted object failed integrity check")
		return nil, fmt.Errorf("record %s: %w", record.ID, err)
	}

	return plaintext, nil
}

// Remove deletes the ciphertext object behind record with a single attempt.
// The error is returned for callers that need it, and always logged.
func (a *Adapter) Remove(ctx context.Context, record *metadata.ObjectRecord) error {
	err := a.withTimeout(ctx, func(ctx context.Context) error {
		return a.objects.Delete(ctx, record.ObjectKey)
	})
	if err == nil || storage.IsNotFound(err) {
		return nil
	}

	a.logger.WithFields(map[string]interface{}{
		"resource_id": record.ResourceID,
		"record_id":   record.ID,
	}).WithError(err).Warn("failed to remove ciphertext object")
	return storeErr("delete object for record", record.ID, err)
}
