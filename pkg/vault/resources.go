package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/TheEntropyCollective/mediavault/pkg/access"
	"github.com/TheEntropyCollective/mediavault/pkg/common/validation"
	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/core/crypto"
	"github.com/TheEntropyCollective/mediavault/pkg/infrastructure/workers"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
)

// NewResource describes a resource to create.
type NewResource struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CatalogRef  string `json:"catalog_ref,omitempty"`
}

// CreateResource creates a protected resource with a fresh random secret,
// sealed before it is stored. A non-administrator creator is granted view
// and upload on it.
func (v *Vault) CreateResource(ctx context.Context, identity access.Identity, params NewResource) (*metadata.Resource, error) {
	if identity.Anonymous() {
		return nil, v.deny("create resource", identity, "", nil)
	}
	params.Name = strings.TrimSpace(params.Name)
	params.Description = strings.TrimSpace(params.Description)
	params.CatalogRef = strings.TrimSpace(params.CatalogRef)
	for _, err := range []error{
		validation.ValidateResourceName(params.Name),
		validation.ValidateDescription(params.Description),
		validation.ValidateCatalogRef(params.CatalogRef),
	} {
		if err != nil {
			return nil, err
		}
	}

	creator := identity.UserID
	if creator == "" {
		creator = "administrator"
	}

	resource := &metadata.Resource{
		ID:          uuid.NewString(),
		Name:        params.Name,
		Description: params.Description,
		CatalogRef:  params.CatalogRef,
		CreatedBy:   creator,
		CreatedAt:   v.now(),
	}

	secret, err := crypto.GenerateSecret()
	if err != nil {
		return nil, err
	}
	resource.SealedSecret, err = v.sealer.Seal(resource.ID, secret)
	crypto.SecureZero(secret)
	if err != nil {
		return nil, err
	}

	if err := v.store.CreateResource(ctx, resource); err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	if !identity.IsAdministrator {
		if _, err := v.access.Grant(ctx, identity.UserID, resource.ID, true, true, identity.UserID); err != nil {
			return nil, fmt.Errorf("grant creator access: %w", err)
		}
	}

	if v.index != nil {
		if err := v.index.Index(resource); err != nil {
			v.logger.WithField("resource_id", resource.ID).WithError(err).Warn("failed to index resource")
		}
	}

	v.logger.WithFields(map[string]interface{}{
		"user_id":     identity.UserID,
		"resource_id": resource.ID,
	}).Info("resource created")

	return resource, nil
}

// GetResource returns one resource the caller may view.
func (v *Vault) GetResource(ctx context.Context, identity access.Identity, resourceID string) (*AccessibleResource, error) {
	if err := v.require(ctx, "get resource", identity, resourceID, access.View); err != nil {
		return nil, err
	}

	resource, err := v.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	canUpload, err := v.access.Authorize(ctx, identity, resourceID, access.Upload)
	if err != nil {
		v.logger.WithField("resource_id", resourceID).WithError(err).Warn("upload capability unknown, reporting none")
	}
	return &AccessibleResource{Resource: *resource, CanUpload: canUpload && err == nil}, nil
}

// DeleteResource removes a resource with all its media and grants. Only an
// administrator or the creator may delete. Every ciphertext object is removed
// before any metadata; if any removal fails nothing else is deleted and the
// call can be retried.
func (v *Vault) DeleteResource(ctx context.Context, identity access.Identity, resourceID string) error {
	if _, err := v.requireAdministration(ctx, "delete resource", identity, resourceID); err != nil {
		return err
	}

	records, err := v.store.ListRecords(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("list records of %s: %w", resourceID, err)
	}

	errs := v.pool.Run(ctx, len(records), func(ctx context.Context, i int) error {
		return v.blobs.Remove(ctx, records[i])
	})
	if err := workers.FirstError(errs); err != nil {
		return fmt.Errorf("remove media of %s: %w", resourceID, err)
	}

	if err := v.store.DeleteResource(ctx, resourceID); err != nil {
		return fmt.Errorf("delete resource %s: %w", resourceID, err)
	}

	if v.index != nil {
		if err := v.index.Remove(resourceID); err != nil {
			v.logger.WithField("resource_id", resourceID).WithError(err).Warn("failed to unindex resource")
		}
	}

	v.logger.WithFields(map[string]interface{}{
		"user_id":     identity.UserID,
		"resource_id": resourceID,
		"objects":     len(records),
	}).Info("resource deleted")
	return nil
}

// SearchResources returns resources matching query that the caller may view.
func (v *Vault) SearchResources(ctx context.Context, identity access.Identity, query string, limit int) ([]AccessibleResource, error) {
	if v.index == nil {
		return nil, fmt.Errorf("search is not enabled: %w", vaulterr.ErrInvalidInput)
	}

	ids, err := v.index.Search(query, limit)
	if err != nil {
		return nil, err
	}

	resources := make([]*metadata.Resource, 0, len(ids))
	for _, id := range ids {
		resource, err := v.store.GetResource(ctx, id)
		if errors.Is(err, vaulterr.ErrResourceNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load search hit %s: %w", id, err)
		}
		resources = append(resources, resource)
	}

	return v.filterAccessible(ctx, identity, resources), nil
}

// RebuildIndex reindexes every resource. It is a no-op without an index.
func (v *Vault) RebuildIndex(ctx context.Context) error {
	if v.index == nil {
		return nil
	}
	n, err := v.index.Rebuild(ctx, v.store)
	if err != nil {
		return err
	}
	v.logger.WithField("resources", n).Info("search index rebuilt")
	return nil
}

// GrantAccess sets userID's capabilities on resourceID. Only an administrator
// or the resource's creator may grant. Granting neither capability revokes.
func (v *Vault) GrantAccess(ctx context.Context, identity access.Identity, resourceID, userID string, canView, canUpload bool) (*metadata.AccessGrant, error) {
	if _, err := v.requireAdministration(ctx, "grant access", identity, resourceID); err != nil {
		return nil, err
	}

	grantor := identity.UserID
	if grantor == "" {
		grantor = "administrator"
	}
	return v.access.Grant(ctx, userID, resourceID, canView, canUpload, grantor)
}

// RevokeAccess removes userID's grant on resourceID.
func (v *Vault) RevokeAccess(ctx context.Context, identity access.Identity, resourceID, userID string) error {
	if _, err := v.requireAdministration(ctx, "revoke access", identity, resourceID); err != nil {
		return err
	}
	return v.access.Revoke(ctx, userID, resourceID)
}

// ListGrants returns the grants on resourceID for auditing.
func (v *Vault) ListGrants(ctx context.Context, identity access.Identity, resourceID string) ([]*metadata.AccessGrant, error) {
	if _, err := v.requireAdministration(ctx, "list grants", identity, resourceID); err != nil {
		return nil, err
	}
	return v.access.ListGrants(ctx, resourceID)
}
