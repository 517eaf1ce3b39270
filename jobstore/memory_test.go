package jobstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

func testJob(id string) *types.Job {
	return &types.Job{
		ID:               id,
		Name:             "Chapter One",
		Voice:            "Kore",
		StyleText:        "Narrate warmly.",
		Pace:             types.PaceSlow,
		ConcurrencyLimit: types.DefaultConcurrencyLimit,
		Units: []types.Unit{
			{ID: id + "-u1", Text: "First sentence.", Status: types.UnitPending, Gain: 1.0},
			{ID: id + "-u2", Text: "Second sentence.", Status: types.UnitDone, ResultKey: "blob-1", Gain: 1.5},
		},
	}
}

func TestMemoryStore_LoadNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.LoadJob(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_LoadInvalidID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.LoadJob(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestMemoryStore_SaveAndLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.SaveJob(ctx, testJob("job-123"))
	require.NoError(t, err)

	loaded, err := store.LoadJob(ctx, "job-123")
	require.NoError(t, err)
	assert.Equal(t, "job-123", loaded.ID)
	assert.Equal(t, "Chapter One", loaded.Name)
	assert.Equal(t, types.PaceSlow, loaded.Pace)
	assert.Len(t, loaded.Units, 2)
	assert.Equal(t, "First sentence.", loaded.Units[0].Text)
	assert.Equal(t, types.UnitDone, loaded.Units[1].Status)
	assert.Equal(t, "blob-1", loaded.Units[1].ResultKey)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestMemoryStore_SaveUpdatesExisting(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := testJob("job-123")
	err := store.SaveJob(ctx, job)
	require.NoError(t, err)

	job.Units[0].Status = types.UnitFailed
	job.Units[0].ErrorMessage = "gemini: request failed"
	job.Running = true
	err = store.SaveJob(ctx, job)
	require.NoError(t, err)

	loaded, err := store.LoadJob(ctx, "job-123")
	require.NoError(t, err)
	assert.True(t, loaded.Running)
	assert.Equal(t, types.UnitFailed, loaded.Units[0].Status)
	assert.Equal(t, "gemini: request failed", loaded.Units[0].ErrorMessage)
}

func TestMemoryStore_SaveInvalidJob(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.SaveJob(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestMemoryStore_SaveInvalidID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.SaveJob(ctx, &types.Job{})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.SaveJob(ctx, testJob("job-123"))
	require.NoError(t, err)

	err = store.DeleteJob(ctx, "job-123")
	require.NoError(t, err)

	_, err = store.LoadJob(ctx, "job-123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.DeleteJob(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteInvalidID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.DeleteJob(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestMemoryStore_ListJobsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		require.NoError(t, store.SaveJob(ctx, testJob(id)))
		time.Sleep(10 * time.Millisecond)
	}

	ids, err := store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-3", "job-2", "job-1"}, ids)

	// Re-saving an old job moves it to the front.
	require.NoError(t, store.SaveJob(ctx, testJob("job-1")))

	ids, err = store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1", "job-3", "job-2"}, ids)
}

func TestMemoryStore_ListJobsEmpty(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ids, err := store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SaveJob(ctx, testJob("job-123")))

	loaded, err := store.LoadJob(ctx, "job-123")
	require.NoError(t, err)

	// Mutating the loaded snapshot must not touch the stored record.
	loaded.Units[0].Status = types.UnitFailed
	loaded.Name = "mutated"

	reloaded, err := store.LoadJob(ctx, "job-123")
	require.NoError(t, err)
	assert.Equal(t, "Chapter One", reloaded.Name)
	assert.Equal(t, types.UnitPending, reloaded.Units[0].Status)
}

func TestMemoryStore_SaveIsolatesCaller(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := testJob("job-123")
	require.NoError(t, store.SaveJob(ctx, job))

	// Mutating the caller's record after save must not touch the store.
	job.Units[0].Text = "changed"

	loaded, err := store.LoadJob(ctx, "job-123")
	require.NoError(t, err)
	assert.Equal(t, "First sentence.", loaded.Units[0].Text)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "job-" + string(rune('a'+n))
			if err := store.SaveJob(ctx, testJob(id)); err != nil {
				t.Errorf("save failed: %v", err)
				return
			}
			if _, err := store.LoadJob(ctx, id); err != nil {
				t.Errorf("load failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	ids, err := store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 10)
}
