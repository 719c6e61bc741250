// Package badgerstore implements metadata.Store on an embedded Badger
// database, for single-node deployments without Postgres.
//
// Key layout:
//
//	res/<resourceID>                  resource row (JSON)
//	rec/<resourceID>/<recordID>       object record (JSON)
//	recidx/<recordID>                 owning resourceID
//	grant/<resourceID>/<userID>       access grant (JSON)
//	ugrant/<userID>/<resourceID>      empty; secondary index for ListUserGrants
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
)

const maxConflictRetries = 5

// StoreConfig configures the Badger store
type StoreConfig struct {
	Path     string // directory for the value log and LSM tree
	InMemory bool   // keep everything in memory; Path is ignored
	Logger   *logrus.Logger
}

// Store is a metadata.Store backed by Badger
type Store struct {
	db  *badger.DB
	log *logrus.Logger
}

var _ metadata.Store = (*Store)(nil)

// resourceRow is the persisted form of a resource. Unlike metadata.Resource
// it serializes the sealed secret.
type resourceRow struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	CatalogRef   string    `json:"catalog_ref,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	SealedSecret []byte    `json:"sealed_secret"`
}

// Open opens (or creates) a Badger store
func Open(config StoreConfig) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Path == "" {
			return nil, fmt.Errorf("badger path is required: %w", vaulterr.ErrInvalidInput)
		}
		opts = badger.DefaultOptions(config.Path)
		opts.ValueLogFileSize = 1024 * 1024 * 100
	}
	opts = opts.WithLogger(config.Logger).WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger store: %w", err)
	}

	return &Store{db: db, log: config.Logger}, nil
}

func resourceKey(id string) []byte { return []byte("res/" + id) }

func recordPrefix(resourceID string) []byte { return []byte("rec/" + resourceID + "/") }

func recordKey(resourceID, id string) []byte { return []byte("rec/" + resourceID + "/" + id) }

func recordIndexKey(id string) []byte { return []byte("recidx/" + id) }

func grantPrefix(resourceID string) []byte { return []byte("grant/" + resourceID + "/") }

func grantKey(resourceID, userID string) []byte {
	return []byte("grant/" + resourceID + "/" + userID)
}

func userGrantPrefix(userID string) []byte { return []byte("ugrant/" + userID + "/") }

func userGrantKey(userID, resourceID string) []byte {
	return []byte("ugrant/" + userID + "/" + resourceID)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("badger %s: %w: %w", op, vaulterr.ErrStorageUnavailable, err)
}

// update runs fn in a read-write transaction, retrying on write conflicts.
// Errors from the shared taxonomy returned by fn pass through unchanged.
func (s *Store) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return unavailable(op, ctxErr)
		}

		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.log.WithFields(logrus.Fields{"op": op, "attempt": attempt + 1}).Debug("badger transaction conflict, retrying")
	}
	return s.translate(op, err)
}

func (s *Store) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	return s.translate(op, s.db.View(fn))
}

func (s *Store) translate(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		vaulterr.ErrResourceNotFound, vaulterr.ErrRecordNotFound,
		vaulterr.ErrGrantNotFound, vaulterr.ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return unavailable(op, err)
}

func getJSON(txn *badger.Txn, key []byte, out interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// scan calls fn for every key/value under prefix.
func scan(txn *badger.Txn, prefix []byte, withValues bool, fn func(key []byte, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = withValues

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var val []byte
		if withValues {
			var err error
			if val, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

func resourceExists(txn *badger.Txn, id string) error {
	if _, err := txn.Get(resourceKey(id)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("resource %s: %w", id, vaulterr.ErrResourceNotFound)
		}
		return err
	}
	return nil
}

func loadResource(txn *badger.Txn, id string) (*metadata.Resource, error) {
	var row resourceRow
	if err := getJSON(txn, resourceKey(id), &row); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("resource %s: %w", id, vaulterr.ErrResourceNotFound)
		}
		return nil, err
	}

	resource := &metadata.Resource{
		ID:           row.ID,
		Name:         row.Name,
		Description:  row.Description,
		CatalogRef:   row.CatalogRef,
		CreatedBy:    row.CreatedBy,
		CreatedAt:    row.CreatedAt,
		SealedSecret: row.SealedSecret,
	}

	err := scan(txn, recordPrefix(id), true, func(_ []byte, val []byte) error {
		var record metadata.ObjectRecord
		if err := json.Unmarshal(val, &record); err != nil {
			return err
		}
		resource.ObjectCount++
		resource.TotalBytes += record.CiphertextLength
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resource, nil
}

func (s *Store) CreateResource(ctx context.Context, resource *metadata.Resource) error {
	if resource.ID == "" {
		return fmt.Errorf("resource id is required: %w", vaulterr.ErrInvalidInput)
	}
	row := resourceRow{
		ID:           resource.ID,
		Name:         resource.Name,
		Description:  resource.Description,
		CatalogRef:   resource.CatalogRef,
		CreatedBy:    resource.CreatedBy,
		CreatedAt:    resource.CreatedAt,
		SealedSecret: resource.SealedSecret,
	}
	return s.update(ctx, "create resource", func(txn *badger.Txn) error {
		if _, err := txn.Get(resourceKey(resource.ID)); err == nil {
			return fmt.Errorf("resource %s already exists: %w", resource.ID, vaulterr.ErrInvalidInput)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, resourceKey(resource.ID), row)
	})
}

func (s *Store) GetResource(ctx context.Context, id string) (*metadata.Resource, error) {
	var resource *metadata.Resource
	err := s.view(ctx, "get resource", func(txn *badger.Txn) error {
		var err error
		resource, err = loadResource(txn, id)
		return err
	})
	return resource, err
}

func (s *Store) ListResources(ctx context.Context) ([]*metadata.Resource, error) {
	resources := make([]*metadata.Resource, 0)
	err := s.view(ctx, "list resources", func(txn *badger.Txn) error {
		var ids []string
		err := scan(txn, []byte("res/"), false, func(key []byte, _ []byte) error {
			ids = append(ids, strings.TrimPrefix(string(key), "res/"))
			return nil
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			resource, err := loadResource(txn, id)
			if err != nil {
				return err
			}
			resources = append(resources, resource)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(resources, func(i, j int) bool {
		if !resources[i].CreatedAt.Equal(resources[j].CreatedAt) {
			return resources[i].CreatedAt.Before(resources[j].CreatedAt)
		}
		return resources[i].ID < resources[j].ID
	})
	return resources, nil
}

// DeleteResource removes the resource row, its records and their index
// entries, and every grant on it, in one transaction.
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	return s.update(ctx, "delete resource", func(txn *badger.Txn) error {
		if err := resourceExists(txn, id); err != nil {
			return err
		}

		var doomed [][]byte
		err := scan(txn, recordPrefix(id), false, func(key []byte, _ []byte) error {
			recordID := strings.TrimPrefix(string(key), string(recordPrefix(id)))
			doomed = append(doomed, key, recordIndexKey(recordID))
			return nil
		})
		if err != nil {
			return err
		}

		err = scan(txn, grantPrefix(id), false, func(key []byte, _ []byte) error {
			userID := strings.TrimPrefix(string(key), string(grantPrefix(id)))
			doomed = append(doomed, key, userGrantKey(userID, id))
			return nil
		})
		if err != nil {
			return err
		}

		doomed = append(doomed, resourceKey(id))
		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CreateRecord(ctx context.Context, record *metadata.ObjectRecord) error {
	if record.ID == "" || record.ResourceID == "" || record.ObjectKey == "" {
		return fmt.Errorf("record id, resource id and object key are required: %w", vaulterr.ErrInvalidInput)
	}
	return s.update(ctx, "create record", func(txn *badger.Txn) error {
		if err := resourceExists(txn, record.ResourceID); err != nil {
			return err
		}
		if err := setJSON(txn, recordKey(record.ResourceID, record.ID), record); err != nil {
			return err
		}
		return txn.Set(recordIndexKey(record.ID), []byte(record.ResourceID))
	})
}

func lookupRecordResource(txn *badger.Txn, id string) (string, error) {
	item, err := txn.Get(recordIndexKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", fmt.Errorf("record %s: %w", id, vaulterr.ErrRecordNotFound)
		}
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (*metadata.ObjectRecord, error) {
	var record metadata.ObjectRecord
	err := s.view(ctx, "get record", func(txn *badger.Txn) error {
		resourceID, err := lookupRecordResource(txn, id)
		if err != nil {
			return err
		}
		return getJSON(txn, recordKey(resourceID, id), &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) ListRecords(ctx context.Context, resourceID string) ([]*metadata.ObjectRecord, error) {
	records := make([]*metadata.ObjectRecord, 0)
	err := s.view(ctx, "list records", func(txn *badger.Txn) error {
		return scan(txn, recordPrefix(resourceID), true, func(_ []byte, val []byte) error {
			var record metadata.ObjectRecord
			if err := json.Unmarshal(val, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	metadata.SortRecords(records)
	return records, nil
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	return s.update(ctx, "delete record", func(txn *badger.Txn) error {
		resourceID, err := lookupRecordResource(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(recordKey(resourceID, id)); err != nil {
			return err
		}
		return txn.Delete(recordIndexKey(id))
	})
}

func (s *Store) MaxOrder(ctx context.Context, resourceID string) (int, error) {
	records, err := s.ListRecords(ctx, resourceID)
	if err != nil {
		return 0, err
	}
	maxOrder := 0
	for _, record := range records {
		if record.Order > maxOrder {
			maxOrder = record.Order
		}
	}
	return maxOrder, nil
}

func (s *Store) ListObjectKeys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	err := s.view(ctx, "list object keys", func(txn *badger.Txn) error {
		return scan(txn, []byte("rec/"), true, func(_ []byte, val []byte) error {
			var record metadata.ObjectRecord
			if err := json.Unmarshal(val, &record); err != nil {
				return err
			}
			keys = append(keys, record.ObjectKey)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) UpsertGrant(ctx context.Context, grant *metadata.AccessGrant) error {
	if grant.UserID == "" || grant.ResourceID == "" {
		return fmt.Errorf("grant user and resource are required: %w", vaulterr.ErrInvalidInput)
	}
	return s.update(ctx, "upsert grant", func(txn *badger.Txn) error {
		if err := resourceExists(txn, grant.ResourceID); err != nil {
			return err
		}
		if err := setJSON(txn, grantKey(grant.ResourceID, grant.UserID), grant); err != nil {
			return err
		}
		return txn.Set(userGrantKey(grant.UserID, grant.ResourceID), nil)
	})
}

func (s *Store) GetGrant(ctx context.Context, userID, resourceID string) (*metadata.AccessGrant, error) {
	var grant metadata.AccessGrant
	err := s.view(ctx, "get grant", func(txn *badger.Txn) error {
		err := getJSON(txn, grantKey(resourceID, userID), &grant)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("grant %s on %s: %w", userID, resourceID, vaulterr.ErrGrantNotFound)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (s *Store) DeleteGrant(ctx context.Context, userID, resourceID string) error {
	return s.update(ctx, "delete grant", func(txn *badger.Txn) error {
		if err := txn.Delete(grantKey(resourceID, userID)); err != nil {
			return err
		}
		return txn.Delete(userGrantKey(userID, resourceID))
	})
}

func (s *Store) ListGrants(ctx context.Context, resourceID string) ([]*metadata.AccessGrant, error) {
	grants := make([]*metadata.AccessGrant, 0)
	err := s.view(ctx, "list grants", func(txn *badger.Txn) error {
		return scan(txn, grantPrefix(resourceID), true, func(_ []byte, val []byte) error {
			var grant metadata.AccessGrant
			if err := json.Unmarshal(val, &grant); err != nil {
				return err
			}
			grants = append(grants, &grant)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *Store) ListUserGrants(ctx context.Context, userID string) ([]*metadata.AccessGrant, error) {
	grants := make([]*metadata.AccessGrant, 0)
	err := s.view(ctx, "list user grants", func(txn *badger.Txn) error {
		prefix := userGrantPrefix(userID)
		var resourceIDs []string
		err := scan(txn, prefix, false, func(key []byte, _ []byte) error {
			resourceIDs = append(resourceIDs, strings.TrimPrefix(string(key), string(prefix)))
			return nil
		})
		if err != nil {
			return err
		}
		for _, resourceID := range resourceIDs {
			var grant metadata.AccessGrant
			if err := getJSON(txn, grantKey(resourceID, userID), &grant); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			grants = append(grants, &grant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grants, nil
}

// Ping reports whether the database is open
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("badger store is closed: %w", vaulterr.ErrStorageUnavailable)
	}
	return nil
}

// Close flushes and closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
