package labelling_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"mlserve-backend/internal/database"
	"mlserve-backend/internal/dataset"
	"mlserve-backend/internal/labelling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

func newManager(t *testing.T) (*labelling.Manager, *gorm.DB) {
	db := createDB(t)
	store := labelling.NewMemoryStore(16, time.Hour)
	return labelling.NewManager(store, dataset.NewRecordProvider(), db), db
}

func readerInputs(n int) map[string]any {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{"index": i}
	}
	return map[string]any{"records": records}
}

func TestSessionAlternation(t *testing.T) {
	manager, db := newManager(t)
	ctx := context.Background()

	batch, complete, err := manager.NextBatch(ctx, "s1", 2, readerInputs(4))
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Len(t, batch, 2)

	t.Run("SecondBatchWithoutSubmit", func(t *testing.T) {
		_, _, err := manager.NextBatch(ctx, "s1", 2, nil)
		assert.ErrorIs(t, err, labelling.ErrSubmissionPending)
	})

	require.NoError(t, manager.Submit(ctx, "s1", []map[string]any{{"index": 0, "label": "a"}}))

	t.Run("DoubleSubmit", func(t *testing.T) {
		err := manager.Submit(ctx, "s1", nil)
		assert.ErrorIs(t, err, labelling.ErrNoSubmissionExpected)
	})

	batch, complete, err = manager.NextBatch(ctx, "s1", 2, nil)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Len(t, batch, 2)

	// Submissions are persisted for audit.
	var submissions []database.LabelSubmission
	require.NoError(t, db.Find(&submissions).Error)
	assert.Len(t, submissions, 1)
	assert.Equal(t, "s1", submissions[0].SessionId)
}

func TestSubmitBeforeFirstBatch(t *testing.T) {
	manager, _ := newManager(t)

	err := manager.Submit(context.Background(), "unknown", nil)
	assert.ErrorIs(t, err, labelling.ErrNoSubmissionExpected)
}

func TestInitializationRequiresReaderInputs(t *testing.T) {
	manager, _ := newManager(t)

	_, _, err := manager.NextBatch(context.Background(), "fresh", 3, nil)
	assert.ErrorIs(t, err, labelling.ErrReaderInputsRequired)
}

func TestSessionCompletion(t *testing.T) {
	manager, db := newManager(t)
	ctx := context.Background()

	_, complete, err := manager.NextBatch(ctx, "s2", 3, readerInputs(3))
	require.NoError(t, err)
	require.False(t, complete)
	require.NoError(t, manager.Submit(ctx, "s2", nil))

	batch, complete, err := manager.NextBatch(ctx, "s2", 3, nil)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Nil(t, batch)

	t.Run("CompletionIsIdempotent", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			batch, complete, err := manager.NextBatch(ctx, "s2", 3, nil)
			require.NoError(t, err)
			assert.True(t, complete)
			assert.Nil(t, batch)
		}
	})

	t.Run("SubmitAfterComplete", func(t *testing.T) {
		err := manager.Submit(ctx, "s2", nil)
		assert.ErrorIs(t, err, labelling.ErrNoSubmissionExpected)
	})

	var record database.LabelSession
	require.NoError(t, db.First(&record, "session_id = ?", "s2").Error)
	assert.True(t, record.Complete)
	assert.Equal(t, 1, record.BatchesServed)
}

// Concurrent batch requests against one session must not both advance the
// computation: exactly one observes the batch, the rest are told to submit.
func TestConcurrentNextBatchMutualExclusion(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()

	_, _, err := manager.NextBatch(ctx, "s3", 1, readerInputs(64))
	require.NoError(t, err)
	require.NoError(t, manager.Submit(ctx, "s3", nil))

	const attempts = 32
	var wg sync.WaitGroup
	got := make(chan dataset.Batch, attempts)
	rejected := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch, _, err := manager.NextBatch(ctx, "s3", 1, nil)
			if err != nil {
				rejected <- err
				return
			}
			got <- batch
		}()
	}
	wg.Wait()
	close(got)
	close(rejected)

	assert.Equal(t, 1, len(got))
	assert.Equal(t, attempts-1, len(rejected))
	for err := range rejected {
		assert.ErrorIs(t, err, labelling.ErrSubmissionPending)
	}
}

func TestIndependentSessions(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			inputs := readerInputs(6)
			for {
				batch, complete, err := manager.NextBatch(ctx, id, 2, inputs)
				if !assert.NoError(t, err) {
					return
				}
				if complete {
					return
				}
				assert.Len(t, batch, 2)
				if !assert.NoError(t, manager.Submit(ctx, id, batch)) {
					return
				}
			}
		}(id)
	}
	wg.Wait()
}

func TestMemoryStoreEviction(t *testing.T) {
	t.Run("MaxSize", func(t *testing.T) {
		store := labelling.NewMemoryStore(2, time.Hour)

		for _, id := range []string{"a", "b", "c"} {
			_, created, err := store.Create(id, labelling.NewSession(id, nil))
			require.NoError(t, err)
			assert.True(t, created)
		}

		assert.Equal(t, 2, store.Len())
		_, ok := store.Get("a")
		assert.False(t, ok, "least recently used session should have been evicted")
		_, ok = store.Get("c")
		assert.True(t, ok)
	})

	t.Run("ExistingSessionWins", func(t *testing.T) {
		store := labelling.NewMemoryStore(4, time.Hour)

		first, created, err := store.Create("x", labelling.NewSession("x", nil))
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := store.Create("x", labelling.NewSession("x", nil))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Same(t, first, second)
	})

	t.Run("Delete", func(t *testing.T) {
		store := labelling.NewMemoryStore(4, time.Hour)
		_, _, err := store.Create("x", labelling.NewSession("x", nil))
		require.NoError(t, err)

		store.Delete("x")
		_, ok := store.Get("x")
		assert.False(t, ok)
	})
}

// Eviction scans read session access times while other requests are actively
// advancing those sessions; an aggressive idle TTL makes every creation scan
// the hot session. Run with the race detector.
func TestEvictionConcurrentWithSessionActivity(t *testing.T) {
	store := labelling.NewMemoryStore(4, time.Millisecond)
	manager := labelling.NewManager(store, dataset.NewRecordProvider(), createDB(t))
	ctx := context.Background()
	inputs := readerInputs(1024)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}

			// The hot session may be evicted at any point; reader inputs are
			// always supplied so it is recreated, and sequencing errors from
			// eviction mid-exchange are expected.
			batch, complete, err := manager.NextBatch(ctx, "hot", 1, inputs)
			if err != nil || complete || batch == nil {
				continue
			}
			manager.Submit(ctx, "hot", batch) //nolint:errcheck
		}
	}()

	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("cold-%d", i)
		_, _, err := manager.NextBatch(ctx, id, 1, inputs)
		assert.NoError(t, err)
	}

	close(stop)
	wg.Wait()
}
