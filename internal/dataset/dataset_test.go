package dataset_test

import (
	"testing"

	"mlserve-backend/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterializeFeatures(t *testing.T) {
	provider := dataset.NewRecordProvider()

	features, err := provider.MaterializeFeatures([]map[string]any{
		{"width": 2.5, "height": 1, "round": true},
		{"width": 3.0, "height": 4, "round": false},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"height", "round", "width"}, features.Columns)
	assert.Equal(t, [][]float64{{1, 1, 2.5}, {4, 0, 3.0}}, features.Rows)
}

func TestMaterializeFeaturesErrors(t *testing.T) {
	provider := dataset.NewRecordProvider()

	t.Run("Empty", func(t *testing.T) {
		_, err := provider.MaterializeFeatures(nil)
		assert.Error(t, err)
	})

	t.Run("MissingColumn", func(t *testing.T) {
		_, err := provider.MaterializeFeatures([]map[string]any{
			{"width": 2.5, "height": 1.0},
			{"width": 3.0},
		})
		assert.ErrorContains(t, err, "missing feature")
	})

	t.Run("NonNumeric", func(t *testing.T) {
		_, err := provider.MaterializeFeatures([]map[string]any{
			{"width": "wide"},
		})
		assert.ErrorContains(t, err, "not numeric")
	})
}

func records(n int) []map[string]any {
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{"index": i}
	}
	return items
}

func TestLabellingComputation(t *testing.T) {
	provider := dataset.NewRecordProvider()

	computation, err := provider.OpenLabellingSession("s1", 2, map[string]any{"records": records(5)})
	require.NoError(t, err)

	batchSizes := []int{2, 2, 1}
	for _, want := range batchSizes {
		batch, ok, err := computation.Advance()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Len(t, batch, want)

		require.NoError(t, computation.Resume([]map[string]any{{"label": "x"}}))
	}

	batch, ok, err := computation.Advance()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, batch)

	// Exhaustion is terminal and idempotent.
	_, ok, err = computation.Advance()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLabellingComputationSuspendPoints(t *testing.T) {
	provider := dataset.NewRecordProvider()

	computation, err := provider.OpenLabellingSession("s2", 3, map[string]any{"records": records(6)})
	require.NoError(t, err)

	t.Run("ResumeBeforeAdvance", func(t *testing.T) {
		assert.Error(t, computation.Resume(nil))
	})

	_, ok, err := computation.Advance()
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("AdvanceWhilePending", func(t *testing.T) {
		_, _, err := computation.Advance()
		assert.Error(t, err)
	})

	t.Run("DoubleResume", func(t *testing.T) {
		require.NoError(t, computation.Resume([]map[string]any{{"label": "y"}}))
		assert.Error(t, computation.Resume(nil))
	})
}

func TestOpenLabellingSessionValidation(t *testing.T) {
	provider := dataset.NewRecordProvider()

	t.Run("MissingRecords", func(t *testing.T) {
		_, err := provider.OpenLabellingSession("s3", 3, map[string]any{})
		assert.ErrorContains(t, err, "records")
	})

	t.Run("BadBatchSize", func(t *testing.T) {
		_, err := provider.OpenLabellingSession("s3", 0, map[string]any{"records": records(1)})
		assert.Error(t, err)
	})

	t.Run("DecodedJSONRecords", func(t *testing.T) {
		// JSON bodies decode to []any, not []map[string]any.
		computation, err := provider.OpenLabellingSession("s4", 1, map[string]any{
			"records": []any{map[string]any{"index": 0.0}},
		})
		require.NoError(t, err)

		batch, ok, err := computation.Advance()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, dataset.Batch{{"index": 0.0}}, batch)
	})
}
