// Package metadata defines the records MediaVault persists about protected
// resources, their encrypted objects and the access grants on them, together
// with the Store interface the Postgres and Badger implementations satisfy.
package metadata

import (
	"context"
	"sort"
	"time"

	"github.com/TheEntropyCollective/mediavault/pkg/core/crypto"
)

// Resource is a protected resource: a catalog entry whose media lives in the vault.
type Resource struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CatalogRef  string    `json:"catalog_ref,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`

	// SealedSecret is the per-resource encryption secret sealed under the
	// server master key. It is never serialized to clients.
	SealedSecret []byte `json:"-"`

	// Derived by the store at read time.
	ObjectCount int64 `json:"object_count"`
	TotalBytes  int64 `json:"total_bytes"`
}

// ObjectRecord links one ciphertext object to its resource and the metadata
// needed to decrypt it. Records are read-only after creation.
type ObjectRecord struct {
	ID               string             `json:"id"`
	ObjectKey        string             `json:"object_key"`
	ResourceID       string             `json:"resource_id"`
	CiphertextLength int64              `json:"ciphertext_length"`
	Metadata         crypto.BlobMetadata `json:"metadata"`
	Order            int                `json:"order"`
	CreatedAt        time.Time          `json:"created_at"`
}

// AccessGrant records a user's capabilities on one resource. At most one
// grant exists per (UserID, ResourceID).
type AccessGrant struct {
	UserID     string    `json:"user_id"`
	ResourceID string    `json:"resource_id"`
	CanView    bool      `json:"can_view"`
	CanUpload  bool      `json:"can_upload"`
	GrantedBy  string    `json:"granted_by"`
	GrantedAt  time.Time `json:"granted_at"`
}

// ResourceStore persists protected resources.
type ResourceStore interface {
	CreateResource(ctx context.Context, resource *Resource) error
	// GetResource returns vaulterr.ErrResourceNotFound when id is unknown.
	GetResource(ctx context.Context, id string) (*Resource, error)
	// ListResources returns every resource ordered by creation time.
	ListResources(ctx context.Context) ([]*Resource, error)
	// DeleteResource removes the resource with all its records and grants.
	DeleteResource(ctx context.Context, id string) error
}

// RecordStore persists encrypted object records.
type RecordStore interface {
	// CreateRecord returns vaulterr.ErrResourceNotFound when the owning
	// resource does not exist.
	CreateRecord(ctx context.Context, record *ObjectRecord) error
	// GetRecord returns vaulterr.ErrRecordNotFound when id is unknown.
	GetRecord(ctx context.Context, id string) (*ObjectRecord, error)
	// ListRecords returns the resource's records ordered by Order then CreatedAt.
	ListRecords(ctx context.Context, resourceID string) ([]*ObjectRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	// MaxOrder returns the highest Order among the resource's records, or 0.
	MaxOrder(ctx context.Context, resourceID string) (int, error)
	// ListObjectKeys returns the object key of every record in the store.
	ListObjectKeys(ctx context.Context) ([]string, error)
}

// GrantStore persists access grants.
type GrantStore interface {
	// UpsertGrant creates or replaces the grant for (UserID, ResourceID).
	UpsertGrant(ctx context.Context, grant *AccessGrant) error
	// GetGrant returns vaulterr.ErrGrantNotFound when no grant exists.
	GetGrant(ctx context.Context, userID, resourceID string) (*AccessGrant, error)
	// DeleteGrant removes the grant; deleting a missing grant is not an error.
	DeleteGrant(ctx context.Context, userID, resourceID string) error
	ListGrants(ctx context.Context, resourceID string) ([]*AccessGrant, error)
	ListUserGrants(ctx context.Context, userID string) ([]*AccessGrant, error)
}

// Store is the complete metadata store.
type Store interface {
	ResourceStore
	RecordStore
	GrantStore

	Ping(ctx context.Context) error
	Close() error
}

// SortRecords orders records by Order, then CreatedAt, then ID.
func SortRecords(records []*ObjectRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
