package storage

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-batchstream/internal/bench"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "history.db")

	db, err := New(dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/dev/null/history.db")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestHistoryStore_CreateAndGet(t *testing.T) {
	store := NewHistoryStore(newTestDB(t))
	ctx := context.Background()

	run := &Run{Backend: "cpu", Model: "ref", BatchSize: 2, Warmup: 1, Repeats: 10}
	require.NoError(t, store.CreateRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.StartedAt.IsZero())

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "ref", got.Model)
	assert.Equal(t, 10, got.Repeats)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryStore_Results(t *testing.T) {
	store := NewHistoryStore(newTestDB(t))
	ctx := context.Background()

	run := &Run{ID: "run-1", Backend: "cpu", Model: "ref", BatchSize: 1, Repeats: 2}
	require.NoError(t, store.CreateRun(ctx, run))

	require.NoError(t, store.RecordResult(ctx, run.ID, 1, bench.Result{
		Queue: "host-queue-3", TotalMs: 4, AvgMs: 2,
		Stats: bench.Stats{Min: 1, Max: 3, P50: 2, P99: 3},
	}))
	require.NoError(t, store.RecordResult(ctx, run.ID, 0, bench.Result{
		Queue: "host-queue-2", TotalMs: 0, AvgMs: math.NaN(),
		Stats: bench.Summarize(nil),
	}))

	results, err := store.Results(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "host-queue-2", results[0].Queue)
	assert.True(t, math.IsNaN(results[0].AvgMs))
	assert.Equal(t, "host-queue-3", results[1].Queue)
	assert.Equal(t, 2.0, results[1].AvgMs)
	assert.Equal(t, 3.0, results[1].P99Ms)

	// seq is unique per run.
	assert.Error(t, store.RecordResult(ctx, run.ID, 0, bench.Result{Queue: "dup"}))
}

func TestHistoryStore_RecentRuns(t *testing.T) {
	store := NewHistoryStore(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateRun(ctx, &Run{
			Backend: "cpu", Model: "ref", BatchSize: 1,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := store.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
}

func TestHistoryStore_ResultForUnknownRun(t *testing.T) {
	store := NewHistoryStore(newTestDB(t))
	err := store.RecordResult(context.Background(), "nope", 0, bench.Result{Queue: "q"})
	assert.Error(t, err)
}
