// Package vault is the protected resource facade: the only entry point the
// UI layer uses to reach encrypted media. It composes the access control
// service, the encrypted blob store and the metadata store, and it is the
// only layer that turns lower-level failures into access denials.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheEntropyCollective/mediavault/pkg/access"
	"github.com/TheEntropyCollective/mediavault/pkg/blobstore"
	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/core/crypto"
	"github.com/TheEntropyCollective/mediavault/pkg/infrastructure/logging"
	"github.com/TheEntropyCollective/mediavault/pkg/infrastructure/workers"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
	"github.com/TheEntropyCollective/mediavault/pkg/search"
	"github.com/TheEntropyCollective/mediavault/pkg/storage"
)

// Config configures a Vault
type Config struct {
	// StoreTimeout bounds every metadata and object store call
	StoreTimeout time.Duration

	// MaxConcurrency bounds parallel object retrieval and removal
	MaxConcurrency int

	// SweepGrace is how old an unreferenced object must be before
	// SweepOrphans deletes it
	SweepGrace time.Duration

	Logger *logging.Logger

	// Index, when set, is kept in sync with resources and serves SearchResources
	Index *search.Index
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		StoreTimeout:   30 * time.Second,
		MaxConcurrency: 8,
		SweepGrace:     24 * time.Hour,
	}
}

// Vault is the protected resource facade.
type Vault struct {
	store   metadata.Store
	objects storage.ObjectStore
	blobs   *blobstore.Adapter
	access  *access.Service
	sealer  *crypto.SecretSealer
	index   *search.Index
	pool    *workers.SimpleWorkerPool
	logger  *logging.Logger
	grace   time.Duration
	now     func() time.Time
}

// New assembles a vault over a metadata store and an object store. Resource
// secrets are sealed with sealer before they reach the metadata store.
func New(store metadata.Store, objects storage.ObjectStore, sealer *crypto.SecretSealer, config Config) (*Vault, error) {
	if store == nil || objects == nil || sealer == nil {
		return nil, fmt.Errorf("vault requires a metadata store, an object store and a secret sealer")
	}

	defaults := DefaultConfig()
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = defaults.StoreTimeout
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.SweepGrace <= 0 {
		config.SweepGrace = defaults.SweepGrace
	}
	// An upload holds an unrecorded object for at most one object put and
	// one record write.
	if floor := 2 * config.StoreTimeout; config.SweepGrace < floor {
		config.SweepGrace = floor
	}
	if config.Logger == nil {
		config.Logger = logging.GetGlobalLogger()
	}

	bounded := metadata.WithTimeout(store, config.StoreTimeout)

	v := &Vault{
		store:   bounded,
		objects: objects,
		access:  access.NewService(bounded, config.Logger),
		sealer:  sealer,
		index:   config.Index,
		pool:    workers.NewSimpleWorkerPool(config.MaxConcurrency),
		logger:  config.Logger.WithComponent("vault"),
		grace:   config.SweepGrace,
		now:     func() time.Time { return time.Now().UTC() },
	}
	v.blobs = blobstore.NewAdapter(objects, bounded, v, blobstore.Config{
		Timeout: config.StoreTimeout,
		Logger:  config.Logger,
	})

	return v, nil
}

// Access exposes the access control service.
func (v *Vault) Access() *access.Service {
	return v.access
}

// ResourceSecret opens the sealed secret of resourceID. It implements
// blobstore.SecretProvider.
func (v *Vault) ResourceSecret(ctx context.Context, resourceID string) ([]byte, error) {
	resource, err := v.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return v.sealer.Open(resource.ID, resource.SealedSecret)
}

// deny logs why a request was refused and returns the uniform denial. An
// authorization backend failure is logged as such but looks identical to a
// plain denial from outside.
func (v *Vault) deny(op string, identity access.Identity, resourceID string, cause error) error {
	fields := map[string]interface{}{
		"op":      op,
		"user_id": identity.UserID,
	}
	if resourceID != "" {
		fields["resource_id"] = resourceID
	}
	if cause != nil {
		v.logger.WithFields(fields).WithError(cause).Warn("authorization unavailable, denying")
	} else {
		v.logger.WithFields(fields).Info("access denied")
	}
	return fmt.Errorf("%s: %w", op, vaulterr.ErrAccessDenied)
}

// require authorizes identity for capability on resourceID, failing closed.
func (v *Vault) require(ctx context.Context, op string, identity access.Identity, resourceID string, capability access.Capability) error {
	ok, err := v.access.Authorize(ctx, identity, resourceID, capability)
	if err != nil {
		return v.deny(op, identity, resourceID, err)
	}
	if !ok {
		return v.deny(op, identity, resourceID, nil)
	}
	return nil
}

// requireAdministration allows administrators and the resource's creator.
// Non-administrators learn nothing about resources that do not exist.
func (v *Vault) requireAdministration(ctx context.Context, op string, identity access.Identity, resourceID string) (*metadata.Resource, error) {
	resource, err := v.store.GetResource(ctx, resourceID)
	switch {
	case err == nil:
	case identity.IsAdministrator:
		return nil, err
	case errors.Is(err, vaulterr.ErrResourceNotFound):
		return nil, v.deny(op, identity, resourceID, nil)
	default:
		return nil, v.deny(op, identity, resourceID, err)
	}

	if identity.IsAdministrator || (identity.UserID != "" && resource.CreatedBy == identity.UserID) {
		return resource, nil
	}
	return nil, v.deny(op, identity, resourceID, nil)
}

// Health checks both backing stores.
func (v *Vault) Health(ctx context.Context) error {
	if err := v.store.Ping(ctx); err != nil {
		return fmt.Errorf("metadata store: %w", err)
	}
	status := v.objects.HealthCheck(ctx)
	if status != nil && !status.Healthy {
		return fmt.Errorf("object store %s: %s: %w", v.objects.Name(), status.Status, vaulterr.ErrStorageUnavailable)
	}
	return nil
}
