package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
)

func TestSortRecords(t *testing.T) {
	base := time.Now()
	records := []*ObjectRecord{
		{ID: "c", Order: 2, CreatedAt: base},
		{ID: "b", Order: 1, CreatedAt: base.Add(time.Second)},
		{ID: "a", Order: 1, CreatedAt: base},
		{ID: "d", Order: 1, CreatedAt: base},
	}

	SortRecords(records)

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a", "d", "b", "c"}, ids)
}

// slowStore blocks every call until its context is done.
type slowStore struct{ Store }

func (s slowStore) GetResource(ctx context.Context, id string) (*Resource, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s slowStore) Ping(ctx context.Context) error {
	return nil
}

func TestWithTimeoutMapsDeadline(t *testing.T) {
	store := WithTimeout(slowStore{}, 10*time.Millisecond)

	_, err := store.GetResource(context.Background(), "r1")
	require.Error(t, err)
	assert.ErrorIs(t, err, vaulterr.ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.NoError(t, store.Ping(context.Background()))
}

func TestWithTimeoutDisabled(t *testing.T) {
	inner := slowStore{}
	assert.Equal(t, Store(inner), WithTimeout(inner, 0))
}
