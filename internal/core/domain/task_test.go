package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask() *ExtractionTask {
	return NewExtractionTask(NewCampaignID(), "cafes", Geoname{ID: 123, Name: "Lisbon"})
}

func TestExtractionTask_Query(t *testing.T) {
	task := newTask()
	assert.Equal(t, "cafes in Lisbon", task.SearchQuery())
	assert.Equal(t, "cafes Lisbon", task.Title())
	assert.Equal(t, TaskStatusPending, task.Status)
}

func TestExtractionTask_CompleteIsTerminal(t *testing.T) {
	task := newTask()
	require.NoError(t, task.MarkInProgress())
	require.NoError(t, task.MarkCompleted())

	assert.ErrorIs(t, task.MarkInProgress(), ErrTaskState)
	assert.ErrorIs(t, task.MarkCompleted(), ErrTaskState)
	assert.ErrorIs(t, task.MarkFailed("late"), ErrTaskState)
	assert.ErrorIs(t, task.MarkPending(), ErrTaskState)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.True(t, task.IsFinal(3))

	kinds := []EventKind{}
	for _, e := range task.PullEvents() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{EventTaskStarted, EventTaskCompleted}, kinds)
}

func TestExtractionTask_RetryWindow(t *testing.T) {
	const maxAttempts = 3
	task := newTask()

	for attempt := 1; attempt <= 5; attempt++ {
		require.NoError(t, task.MarkInProgress())
		require.NoError(t, task.MarkFailed("timeout"))
		assert.Equal(t, attempt, task.Attempts)
		assert.Equal(t, attempt < maxAttempts, task.CanRetry(maxAttempts), "attempt %d", attempt)
		assert.Equal(t, attempt >= maxAttempts, task.IsExhausted(maxAttempts))
		assert.Equal(t, task.CanRetry(maxAttempts), task.IsClaimable(maxAttempts))
	}
	require.NotNil(t, task.LastError)
	assert.Equal(t, "timeout", *task.LastError)
}

func TestExtractionTask_EmptyFailureMessage(t *testing.T) {
	task := newTask()
	require.NoError(t, task.MarkFailed(""))
	assert.Nil(t, task.LastError)

	events := task.PullEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "unknown error", events[0].Error)
}

func TestExtractionTask_ResetToPending(t *testing.T) {
	task := newTask()
	require.NoError(t, task.MarkFailed("boom"))
	require.NoError(t, task.MarkPending())

	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.True(t, task.IsClaimable(1), "pending tasks are claimable whatever the attempts")
}
