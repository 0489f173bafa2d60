package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
	"github.com/Gitchegumi/quantpipe-sub002/internal/storage"
	pgstore "github.com/Gitchegumi/quantpipe-sub002/internal/storage/postgres"
)

func runFixture(runID, sourcePath string, startedAt int64) *domain.IngestionRun {
	return &domain.IngestionRun{
		RunID:     runID,
		StartedAt: startedAt,
		CoreHash:  "0ffbe8a1",
		Metrics: domain.IngestionMetrics{
			SourcePath:        sourcePath,
			Backend:           domain.BackendCSV,
			RowsIn:            101,
			RowsOut:           100,
			DuplicatesRemoved: 1,
			GapsInserted:      1,
			CadenceExpected:   100,
			CadenceDeviation:  1.0,
			Runtime:           250 * time.Millisecond,
			RowsPerSecond:     400,
			CacheHit:          false,
			DowncastApplied:   true,
			MetStretchTarget:  false,
		},
	}
}

func TestRunStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewRunStore(pool)
	ctx := context.Background()

	run := runFixture("run-1", "data/btc.csv", 1_700_000_000_000)
	require.NoError(t, store.Insert(ctx, run))

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, run.StartedAt, got.StartedAt)
	assert.Equal(t, run.CoreHash, got.CoreHash)
	assert.Equal(t, run.Metrics, got.Metrics)
}

func TestRunStore_DuplicateRunID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewRunStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, runFixture("run-1", "data/btc.csv", 1000)))

	err := store.Insert(ctx, runFixture("run-1", "data/eth.csv", 2000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunStore_ListBySource(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewRunStore(pool)
	ctx := context.Background()

	// Inserted out of order to prove the query sorts by started_at.
	require.NoError(t, store.Insert(ctx, runFixture("run-2", "data/btc.csv", 2000)))
	require.NoError(t, store.Insert(ctx, runFixture("run-1", "data/btc.csv", 1000)))
	require.NoError(t, store.Insert(ctx, runFixture("run-x", "data/eth.csv", 1500)))

	got, err := store.ListBySource(ctx, "data/btc.csv")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "run-2", got[1].RunID)
}

func TestRunStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewRunStore(pool)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.ListBySource(ctx, "nonexistent.csv")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewRunStore(pool)
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.IngestionRun{}), storage.ErrInvalidInput)
}
