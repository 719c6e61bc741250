package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata/badgerstore"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata/metadatatest"
)

func newTestService(t *testing.T) (*Service, *metadata.Resource) {
	t.Helper()
	store, err := badgerstore.Open(badgerstore.StoreConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	resource := metadatatest.NewResource("profile", "owner")
	require.NoError(t, store.CreateResource(context.Background(), resource))

	return NewService(store, nil), resource
}

func TestAuthorizeMonotonicity(t *testing.T) {
	service, resource := newTestService(t)
	ctx := context.Background()
	user := Identity{UserID: "u"}

	ok, err := service.Authorize(ctx, user, resource.ID, View)
	require.NoError(t, err)
	assert.False(t, ok, "no grant means no access")

	_, err = service.Grant(ctx, "u", resource.ID, true, false, "owner")
	require.NoError(t, err)

	ok, err = service.Authorize(ctx, user, resource.ID, View)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = service.Authorize(ctx, user, resource.ID, Upload)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, service.Revoke(ctx, "u", resource.ID))

	for _, c := range []Capability{View, Upload} {
		ok, err = service.Authorize(ctx, user, resource.ID, c)
		require.NoError(t, err)
		assert.False(t, ok, c.String())
	}
}

func TestAdministratorBypass(t *testing.T) {
	service, resource := newTestService(t)
	admin := Identity{UserID: "root", IsAdministrator: true}

	for _, c := range []Capability{View, Upload} {
		ok, err := service.Authorize(context.Background(), admin, resource.ID, c)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	// Even for a resource that does not exist.
	ok, err := service.Authorize(context.Background(), admin, "missing", Upload)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAnonymousDenied(t *testing.T) {
	service, resource := newTestService(t)
	ok, err := service.Authorize(context.Background(), Identity{}, resource.ID, View)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, Identity{}.Anonymous())
}

func TestGrantUpsertReplaces(t *testing.T) {
	service, resource := newTestService(t)
	ctx := context.Background()

	first, err := service.Grant(ctx, "u", resource.ID, true, false, "owner")
	require.NoError(t, err)

	// Identical re-grant is observably a no-op.
	again, err := service.Grant(ctx, "u", resource.ID, true, false, "someone-else")
	require.NoError(t, err)
	assert.Equal(t, "owner", again.GrantedBy)
	assert.WithinDuration(t, first.GrantedAt, again.GrantedAt, time.Millisecond)

	_, err = service.Grant(ctx, "u", resource.ID, true, true, "admin")
	require.NoError(t, err)

	grants, err := service.ListGrants(ctx, resource.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].CanUpload)
	assert.Equal(t, "admin", grants[0].GrantedBy)

	userGrants, err := service.ListUserGrants(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, userGrants, 1)
}

func TestGrantWithoutCapabilitiesRevokes(t *testing.T) {
	service, resource := newTestService(t)
	ctx := context.Background()

	_, err := service.Grant(ctx, "u", resource.ID, true, true, "owner")
	require.NoError(t, err)

	grant, err := service.Grant(ctx, "u", resource.ID, false, false, "owner")
	require.NoError(t, err)
	assert.Nil(t, grant)

	grants, err := service.ListGrants(ctx, resource.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestRevokeMissingGrantIsNoop(t *testing.T) {
	service, resource := newTestService(t)
	assert.NoError(t, service.Revoke(context.Background(), "nobody", resource.ID))
}

func TestGrantValidation(t *testing.T) {
	service, resource := newTestService(t)
	ctx := context.Background()

	_, err := service.Grant(ctx, "", resource.ID, true, false, "owner")
	assert.ErrorIs(t, err, vaulterr.ErrInvalidInput)
	_, err = service.Grant(ctx, "u", resource.ID, true, false, "")
	assert.ErrorIs(t, err, vaulterr.ErrInvalidInput)
	_, err = service.Grant(ctx, "u", "missing", true, false, "owner")
	assert.ErrorIs(t, err, vaulterr.ErrResourceNotFound)
}

// brokenGrants fails every call as an unreachable backend would.
type brokenGrants struct {
	metadata.GrantStore
	err error
}

func (b brokenGrants) GetGrant(context.Context, string, string) (*metadata.AccessGrant, error) {
	return nil, b.err
}

func TestAuthorizeFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unavailable", vaulterr.ErrStorageUnavailable},
		{"unclassified", errors.New("connection reset by peer")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewService(brokenGrants{err: tt.err}, nil)
			ok, err := service.Authorize(context.Background(), Identity{UserID: "u"}, "r", View)
			assert.False(t, ok)
			assert.ErrorIs(t, err, vaulterr.ErrStorageUnavailable)
			assert.True(t, vaulterr.IsRetryable(err))
		})
	}
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("upload")
	require.NoError(t, err)
	assert.Equal(t, Upload, c)

	_, err = ParseCapability("delete")
	assert.ErrorIs(t, err, vaulterr.ErrInvalidInput)
}
