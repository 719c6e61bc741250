// Package metadatatest holds the conformance suite every metadata.Store
// implementation must pass.
package metadatatest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/core/crypto"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
)

// NewResource returns a resource with fresh IDs, ready to insert.
func NewResource(name, createdBy string) *metadata.Resource {
	return &metadata.Resource{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  name + " description",
		CreatedBy:    createdBy,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
		SealedSecret: []byte("sealed-" + name),
	}
}

// NewRecord returns a record for resourceID with a fresh object key.
func NewRecord(resourceID string, order int, length int64) *metadata.ObjectRecord {
	return &metadata.ObjectRecord{
		ID:               uuid.NewString(),
		ObjectKey:        "objects/" + uuid.NewString(),
		ResourceID:       resourceID,
		CiphertextLength: length,
		Metadata: crypto.BlobMetadata{
			Salt:                []byte("0123456789abcdef"),
			Nonce:               []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 0xff},
			OriginalContentType: "image/jpeg",
			OriginalByteLength:  length - 16,
		},
		Order:     order,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// RunStoreSuite runs the conformance suite. newStore must return an empty store.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) metadata.Store) {
	t.Run("ResourceLifecycle", func(t *testing.T) { testResourceLifecycle(t, newStore(t)) })
	t.Run("Records", func(t *testing.T) { testRecords(t, newStore(t)) })
	t.Run("Grants", func(t *testing.T) { testGrants(t, newStore(t)) })
	t.Run("CascadeDelete", func(t *testing.T) { testCascadeDelete(t, newStore(t)) })
	t.Run("ConcurrentUpserts", func(t *testing.T) { testConcurrentUpserts(t, newStore(t)) })
}

func testResourceLifecycle(t *testing.T, store metadata.Store) {
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	first := NewResource("first", "alice")
	second := NewResource("second", "bob")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	second.CatalogRef = "catalog:42"

	require.NoError(t, store.CreateResource(ctx, first))
	require.NoError(t, store.CreateResource(ctx, second))

	got, err := store.GetResource(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
	assert.Equal(t, "catalog:42", got.CatalogRef)
	assert.Equal(t, "bob", got.CreatedBy)
	assert.Equal(t, []byte("sealed-second"), got.SealedSecret)
	assert.WithinDuration(t, second.CreatedAt, got.CreatedAt, time.Millisecond)
	assert.Zero(t, got.ObjectCount)

	list, err := store.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	_, err = store.GetResource(ctx, uuid.NewString())
	assert.ErrorIs(t, err, vaulterr.ErrResourceNotFound)

	assert.ErrorIs(t, store.DeleteResource(ctx, uuid.NewString()), vaulterr.ErrResourceNotFound)
}

func testRecords(t *testing.T, store metadata.Store) {
	ctx := context.Background()
	resource := NewResource("records", "alice")
	require.NoError(t, store.CreateResource(ctx, resource))

	maxOrder, err := store.MaxOrder(ctx, resource.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, maxOrder)

	r2 := NewRecord(resource.ID, 2, 100)
	r1 := NewRecord(resource.ID, 1, 50)
	r1b := NewRecord(resource.ID, 1, 30)
	r1b.CreatedAt = r1.CreatedAt.Add(time.Second)
	for _, r := range []*metadata.ObjectRecord{r2, r1b, r1} {
		require.NoError(t, store.CreateRecord(ctx, r))
	}

	maxOrder, err = store.MaxOrder(ctx, resource.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, maxOrder)

	records, err := store.ListRecords(ctx, resource.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{r1.ID, r1b.ID, r2.ID}, []string{records[0].ID, records[1].ID, records[2].ID})

	got, err := store.GetRecord(ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, r2.ObjectKey, got.ObjectKey)
	assert.Equal(t, r2.Metadata.Salt, got.Metadata.Salt)
	assert.Equal(t, r2.Metadata.Nonce, got.Metadata.Nonce)
	assert.Equal(t, "image/jpeg", got.Metadata.OriginalContentType)
	assert.Equal(t, int64(84), got.Metadata.OriginalByteLength)
	assert.Equal(t, int64(100), got.CiphertextLength)

	res, err := store.GetResource(ctx, resource.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.ObjectCount)
	assert.Equal(t, int64(180), res.TotalBytes)

	keys, err := store.ListObjectKeys(ctx)
	require.NoError(t, err)
	sort.Strings(keys)
	expected := []string{r1.ObjectKey, r1b.ObjectKey, r2.ObjectKey}
	sort.Strings(expected)
	assert.Equal(t, expected, keys)

	require.NoError(t, store.DeleteRecord(ctx, r1.ID))
	_, err = store.GetRecord(ctx, r1.ID)
	assert.ErrorIs(t, err, vaulterr.ErrRecordNotFound)
	assert.ErrorIs(t, store.DeleteRecord(ctx, r1.ID), vaulterr.ErrRecordNotFound)

	orphan := NewRecord(uuid.NewString(), 1, 10)
	assert.ErrorIs(t, store.CreateRecord(ctx, orphan), vaulterr.ErrResourceNotFound)
}

func testGrants(t *testing.T, store metadata.Store) {
	ctx := context.Background()
	a := NewResource("a", "admin")
	b := NewResource("b", "admin")
	require.NoError(t, store.CreateResource(ctx, a))
	require.NoError(t, store.CreateResource(ctx, b))

	_, err := store.GetGrant(ctx, "carol", a.ID)
	assert.ErrorIs(t, err, vaulterr.ErrGrantNotFound)

	grant := &metadata.AccessGrant{
		UserID: "carol", ResourceID: a.ID, CanView: true,
		GrantedBy: "admin", GrantedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.UpsertGrant(ctx, grant))

	got, err := store.GetGrant(ctx, "carol", a.ID)
	require.NoError(t, err)
	assert.True(t, got.CanView)
	assert.False(t, got.CanUpload)
	assert.Equal(t, "admin", got.GrantedBy)

	// Upsert replaces in place.
	grant.CanUpload = true
	grant.GrantedBy = "alice"
	require.NoError(t, store.UpsertGrant(ctx, grant))

	grants, err := store.ListGrants(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].CanUpload)
	assert.Equal(t, "alice", grants[0].GrantedBy)

	require.NoError(t, store.UpsertGrant(ctx, &metadata.AccessGrant{
		UserID: "carol", ResourceID: b.ID, CanView: true, GrantedBy: "admin", GrantedAt: time.Now().UTC(),
	}))
	userGrants, err := store.ListUserGrants(ctx, "carol")
	require.NoError(t, err)
	assert.Len(t, userGrants, 2)

	require.NoError(t, store.DeleteGrant(ctx, "carol", a.ID))
	require.NoError(t, store.DeleteGrant(ctx, "carol", a.ID))
	_, err = store.GetGrant(ctx, "carol", a.ID)
	assert.ErrorIs(t, err, vaulterr.ErrGrantNotFound)

	err = store.UpsertGrant(ctx, &metadata.AccessGrant{
		UserID: "carol", ResourceID: uuid.NewString(), CanView: true, GrantedBy: "admin", GrantedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, vaulterr.ErrResourceNotFound)
}

func testCascadeDelete(t *testing.T, store metadata.Store) {
	ctx := context.Background()
	doomed := NewResource("doomed", "alice")
	kept := NewResource("kept", "alice")
	require.NoError(t, store.CreateResource(ctx, doomed))
	require.NoError(t, store.CreateResource(ctx, kept))

	doomedRecord := NewRecord(doomed.ID, 1, 10)
	keptRecord := NewRecord(kept.ID, 1, 10)
	require.NoError(t, store.CreateRecord(ctx, doomedRecord))
	require.NoError(t, store.CreateRecord(ctx, keptRecord))
	for _, id := range []string{doomed.ID, kept.ID} {
		require.NoError(t, store.UpsertGrant(ctx, &metadata.AccessGrant{
			UserID: "dave", ResourceID: id, CanView: true, GrantedBy: "alice", GrantedAt: time.Now().UTC(),
		}))
	}

	require.NoError(t, store.DeleteResource(ctx, doomed.ID))

	_, err := store.GetResource(ctx, doomed.ID)
	assert.ErrorIs(t, err, vaulterr.ErrResourceNotFound)
	_, err = store.GetRecord(ctx, doomedRecord.ID)
	assert.ErrorIs(t, err, vaulterr.ErrRecordNotFound)
	_, err = store.GetGrant(ctx, "dave", doomed.ID)
	assert.ErrorIs(t, err, vaulterr.ErrGrantNotFound)

	records, err := store.ListRecords(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	userGrants, err := store.ListUserGrants(ctx, "dave")
	require.NoError(t, err)
	require.Len(t, userGrants, 1)
	assert.Equal(t, kept.ID, userGrants[0].ResourceID)

	keys, err := store.ListObjectKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{keptRecord.ObjectKey}, keys)
}

func testConcurrentUpserts(t *testing.T, store metadata.Store) {
	ctx := context.Background()
	resource := NewResource("contended", "admin")
	require.NoError(t, store.CreateResource(ctx, resource))

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.UpsertGrant(ctx, &metadata.AccessGrant{
				UserID: "erin", ResourceID: resource.ID, CanView: true, CanUpload: i%2 == 0,
				GrantedBy: fmt.Sprintf("admin-%d", i), GrantedAt: time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	grants, err := store.ListGrants(ctx, resource.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}
