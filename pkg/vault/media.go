package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TheEntropyCollective/mediavault/pkg/access"
	"github.com/TheEntropyCollective/mediavault/pkg/common/validation"
	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/infrastructure/workers"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
)

// DefaultContentType is recorded when an upload declares none.
const DefaultContentType = "application/octet-stream"

// AccessibleResource is a resource the caller may view, annotated with
// whether they may also upload to it.
type AccessibleResource struct {
	metadata.Resource
	CanUpload bool `json:"can_upload"`
}

// MediaItem is one decrypted media object.
type MediaItem struct {
	RecordID    string `json:"record_id"`
	ContentType string `json:"content_type"`
	Order       int    `json:"order"`
	Data        []byte `json:"data"`
}

// MediaSet is the complete decrypted media of one resource, in display order.
type MediaSet struct {
	ResourceID string      `json:"resource_id"`
	Items      []MediaItem `json:"items"`
}

// ListAccessibleResources returns every resource identity may view.
// Administrators see all resources. A resource whose authorization cannot be
// evaluated is left out.
func (v *Vault) ListAccessibleResources(ctx context.Context, identity access.Identity) ([]AccessibleResource, error) {
	resources, err := v.store.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return v.filterAccessible(ctx, identity, resources), nil
}

// filterAccessible keeps the resources identity may view, preserving order.
func (v *Vault) filterAccessible(ctx context.Context, identity access.Identity, resources []*metadata.Resource) []AccessibleResource {
	if identity.IsAdministrator {
		out := make([]AccessibleResource, 0, len(resources))
		for _, r := range resources {
			out = append(out, AccessibleResource{Resource: *r, CanUpload: true})
		}
		return out
	}

	type verdict struct {
		view, upload bool
	}
	verdicts := make([]verdict, len(resources))

	v.pool.Run(ctx, len(resources), func(ctx context.Context, i int) error {
		resourceID := resources[i].ID
		canView, err := v.access.Authorize(ctx, identity, resourceID, access.View)
		if err != nil {
			v.logger.WithField("resource_id", resourceID).WithError(err).Warn("skipping resource, authorization unavailable")
			return nil
		}
		if !canView {
			return nil
		}
		canUpload, err := v.access.Authorize(ctx, identity, resourceID, access.Upload)
		if err != nil {
			v.logger.WithField("resource_id", resourceID).WithError(err).Warn("upload capability unknown, reporting none")
		}
		verdicts[i] = verdict{view: true, upload: canUpload && err == nil}
		return nil
	})

	out := make([]AccessibleResource, 0)
	for i, r := range resources {
		if verdicts[i].view {
			out = append(out, AccessibleResource{Resource: *r, CanUpload: verdicts[i].upload})
		}
	}
	return out
}

// FetchMedia decrypts and returns every media item of resourceID. The caller
// needs View. Any retrieval failure fails the whole call; partial media sets
// are never returned.
func (v *Vault) FetchMedia(ctx context.Context, identity access.Identity, resourceID string) (*MediaSet, error) {
	if err := v.require(ctx, "fetch media", identity, resourceID, access.View); err != nil {
		return nil, err
	}

	records, err := v.store.ListRecords(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list records of %s: %w", resourceID, err)
	}
	metadata.SortRecords(records)

	items, err := workers.ParallelMap(ctx, v.pool, records, func(ctx context.Context, record *metadata.ObjectRecord) (MediaItem, error) {
		data, err := v.blobs.Retrieve(ctx, record)
		if err != nil {
			return MediaItem{}, err
		}
		return MediaItem{
			RecordID:    record.ID,
			ContentType: record.Metadata.OriginalContentType,
			Order:       record.Order,
			Data:        data,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch media of %s: %w", resourceID, err)
	}

	return &MediaSet{ResourceID: resourceID, Items: items}, nil
}

// UploadMedia encrypts data and appends it to resourceID's media. The caller
// needs Upload. The new item takes the next order index; concurrent uploads
// may receive the same index.
func (v *Vault) UploadMedia(ctx context.Context, identity access.Identity, resourceID string, data []byte, contentType string) (*metadata.ObjectRecord, error) {
	if err := v.require(ctx, "upload media", identity, resourceID, access.Upload); err != nil {
		return nil, err
	}

	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = DefaultContentType
	}
	if err := validation.ValidateContentType(contentType); err != nil {
		return nil, err
	}

	maxOrder, err := v.store.MaxOrder(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("next order for %s: %w", resourceID, err)
	}

	record, err := v.blobs.Store(ctx, resourceID, data, contentType, maxOrder+1)
	if err != nil {
		return nil, err
	}

	v.logger.WithFields(map[string]interface{}{
		"user_id":     identity.UserID,
		"resource_id": resourceID,
		"record_id":   record.ID,
		"order":       record.Order,
	}).Info("media uploaded")

	return record, nil
}

// DeleteMedia removes one media item. The caller needs Upload on the owning
// resource. The ciphertext object goes first, on a best-effort basis, then
// the record.
func (v *Vault) DeleteMedia(ctx context.Context, identity access.Identity, recordID string) error {
	record, err := v.store.GetRecord(ctx, recordID)
	if err != nil {
		switch {
		case identity.IsAdministrator:
			return err
		case errors.Is(err, vaulterr.ErrRecordNotFound):
			return v.deny("delete media", identity, "", nil)
		default:
			return v.deny("delete media", identity, "", err)
		}
	}

	if err := v.require(ctx, "delete media", identity, record.ResourceID, access.Upload); err != nil {
		return err
	}

	// Remove logs its own failures; an orphaned object is left for the sweeper.
	_ = v.blobs.Remove(ctx, record)

	if err := v.store.DeleteRecord(ctx, recordID); err != nil {
		return fmt.Errorf("delete record %s: %w", recordID, err)
	}

	v.logger.WithFields(map[string]interface{}{
		"user_id":     identity.UserID,
		"resource_id": record.ResourceID,
		"record_id":   recordID,
	}).Info("media deleted")
	return nil
}
