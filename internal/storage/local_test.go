package storage_test

import (
	"context"
	"strings"
	"testing"

	"mlserve-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderRoundTrip(t *testing.T) {
	provider := storage.NewLocalProvider(t.TempDir())
	ctx := context.Background()

	require.NoError(t, provider.CreateBucket(ctx, "trained-models"))

	require.NoError(t, provider.PutObject(ctx, "trained-models", "runs/run-1.json", strings.NewReader(`{"weights":[1]}`)))
	require.NoError(t, provider.PutObject(ctx, "trained-models", "runs/run-2.json", strings.NewReader(`{"weights":[2]}`)))

	data, err := provider.GetObject(ctx, "trained-models", "runs/run-1.json")
	require.NoError(t, err)
	assert.Equal(t, `{"weights":[1]}`, string(data))

	objects, err := provider.ListObjects(ctx, "trained-models", "runs/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "runs/run-1.json", objects[0].Name)
	assert.Equal(t, "runs/run-2.json", objects[1].Name)
}

func TestLocalProviderListMissingBucket(t *testing.T) {
	provider := storage.NewLocalProvider(t.TempDir())

	objects, err := provider.ListObjects(context.Background(), "nope", "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}
