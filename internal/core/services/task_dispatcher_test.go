package services

import (
	"context"
	"sync"
	"testing"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTasks(t *testing.T, store *memStore, n int) []*domain.ExtractionTask {
	t.Helper()
	tasks := testTasks(n)
	for _, task := range tasks {
		require.NoError(t, store.SaveTask(context.Background(), task))
	}
	return tasks
}

func TestExtractionDispatcher_ClaimsInCreationOrder(t *testing.T) {
	store := newMemStore()
	tasks := seedTasks(t, store, 4)
	d := NewExtractionTaskDispatcher(testLogger(), store, nil)

	n, err := d.LoadTasks(context.Background(), tasks[0].CampaignID, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, d.TotalLoaded())
	assert.Equal(t, 4, d.Remaining())

	for _, want := range tasks {
		got, ok := d.ClaimNext()
		require.True(t, ok)
		assert.Equal(t, want.ID, got)
	}

	_, ok := d.ClaimNext()
	assert.False(t, ok)
	assert.Equal(t, 0, d.Remaining())
	assert.Equal(t, 4, d.TotalLoaded())
}

func TestExtractionDispatcher_EmptyClaimDoesNotBlock(t *testing.T) {
	d := NewExtractionTaskDispatcher(testLogger(), newMemStore(), nil)

	id, ok := d.ClaimNext()
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestExtractionDispatcher_ExactlyOnceAcrossConsumers(t *testing.T) {
	store := newMemStore()
	tasks := seedTasks(t, store, 500)
	d := NewExtractionTaskDispatcher(testLogger(), store, NewMetrics())

	_, err := d.LoadTasks(context.Background(), tasks[0].CampaignID, 3)
	require.NoError(t, err)

	const consumers = 8
	var (
		mu      sync.Mutex
		claimed = make(map[domain.TaskID]int)
		wg      sync.WaitGroup
	)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				id, ok := d.ClaimNext()
				if !ok {
					return
				}
				mu.Lock()
				claimed[id]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, len(tasks))
	for _, task := range tasks {
		assert.Equal(t, 1, claimed[task.ID], "task %s", task.ID)
	}
}

func TestExtractionDispatcher_ExcludesExhaustedAndCompleted(t *testing.T) {
	store := newMemStore()
	tasks := seedTasks(t, store, 4)
	ctx := context.Background()
	const maxAttempts = 2

	// retryable failure
	require.NoError(t, tasks[0].MarkInProgress())
	require.NoError(t, tasks[0].MarkFailed("timeout"))
	// exhausted
	require.NoError(t, tasks[1].MarkFailed("boom"))
	require.NoError(t, tasks[1].MarkFailed("boom"))
	assert.False(t, tasks[1].CanRetry(maxAttempts))
	// completed
	require.NoError(t, tasks[2].MarkInProgress())
	require.NoError(t, tasks[2].MarkCompleted())
	for _, task := range tasks[:3] {
		require.NoError(t, store.SaveTask(ctx, task))
	}

	d := NewExtractionTaskDispatcher(testLogger(), store, nil)
	n, err := d.LoadTasks(ctx, tasks[0].CampaignID, maxAttempts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var got []domain.TaskID
	for {
		id, ok := d.ClaimNext()
		if !ok {
			break
		}
		got = append(got, id)
	}
	assert.Equal(t, []domain.TaskID{tasks[0].ID, tasks[3].ID}, got)

	// failing again keeps an exhausted task out of later loads
	require.NoError(t, tasks[1].MarkFailed("boom"))
	require.NoError(t, store.SaveTask(ctx, tasks[1]))
	n, err = d.LoadTasks(ctx, tasks[0].CampaignID, maxAttempts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestExtractionDispatcher_ReloadKeepsUnclaimedIDs(t *testing.T) {
	store := newMemStore()
	tasks := seedTasks(t, store, 2)
	ctx := context.Background()
	d := NewExtractionTaskDispatcher(testLogger(), store, nil)

	_, err := d.LoadTasks(ctx, tasks[0].CampaignID, 3)
	require.NoError(t, err)
	first, ok := d.ClaimNext()
	require.True(t, ok)
	assert.Equal(t, tasks[0].ID, first)

	_, err = d.LoadTasks(ctx, tasks[0].CampaignID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Remaining())
	assert.Equal(t, 2, d.TotalLoaded())

	next, ok := d.ClaimNext()
	require.True(t, ok)
	assert.Equal(t, tasks[1].ID, next)
}

func TestEnrichmentDispatcher_LoadsGlobalBacklog(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	pending := domain.NewWebsiteEnrichmentTask("place-1", "https://a.example")
	retry := domain.NewWebsiteEnrichmentTask("place-2", "https://b.example")
	retry.MarkFailed("503")
	done := domain.NewWebsiteEnrichmentTask("place-3", "https://c.example")
	done.MarkCompleted()
	for _, task := range []*domain.WebsiteEnrichmentTask{pending, retry, done} {
		require.NoError(t, store.SaveEnrichmentTask(ctx, task))
	}

	d := NewEnrichmentTaskDispatcher(testLogger(), store, nil)
	n, err := d.LoadTasks(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var claimer Claimer[domain.EnrichmentTaskID] = d
	id, ok := claimer.ClaimNext()
	require.True(t, ok)
	assert.Equal(t, pending.ID, id)
}
