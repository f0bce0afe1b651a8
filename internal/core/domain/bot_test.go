package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyBot(t *testing.T) *Bot {
	t.Helper()
	b := NewBot()
	require.NoError(t, b.MarkReady())
	return b
}

func TestBot_Lifecycle(t *testing.T) {
	b := NewBot()
	assert.Equal(t, BotStatusInitializing, b.Status())
	assert.ErrorIs(t, b.AssignTask(NewTaskID()), ErrBotState)

	require.NoError(t, b.MarkReady())
	assert.True(t, b.IsAvailable())
	assert.ErrorIs(t, b.MarkReady(), ErrBotState)

	taskID := NewTaskID()
	require.NoError(t, b.AssignTask(taskID))
	assert.True(t, b.IsProcessing())
	current, ok := b.CurrentTaskID()
	require.True(t, ok)
	assert.Equal(t, taskID, current)

	require.NoError(t, b.CompleteTask())
	assert.True(t, b.IsAvailable())
	_, ok = b.CurrentTaskID()
	assert.False(t, ok)
	assert.ErrorIs(t, b.CompleteTask(), ErrBotState)

	kinds := []EventKind{}
	for _, e := range b.PullEvents() {
		kinds = append(kinds, e.Kind)
		assert.Equal(t, string(b.ID()), e.BotID)
	}
	assert.Equal(t, []EventKind{EventBotInitialized, EventBotTaskAssigned, EventBotTaskCompleted}, kinds)
}

func TestBot_AssignWhileProcessing(t *testing.T) {
	b := readyBot(t)
	first, second := NewTaskID(), NewTaskID()
	require.NoError(t, b.AssignTask(first))
	require.NoError(t, b.AssignTask(second))

	current, _ := b.CurrentTaskID()
	assert.Equal(t, second, current)
}

func TestBot_ErrorAndClose(t *testing.T) {
	b := readyBot(t)
	require.NoError(t, b.AssignTask(NewTaskID()))
	b.UpdateSnapshot(NewBotSnapshot(b.ID(), b.Status(), []byte("png"), "https://maps.example", NewTaskID()))
	_, ok := b.LastSnapshot()
	require.True(t, ok)

	b.MarkError("navigation failed")
	assert.True(t, b.HasError())
	assert.False(t, b.IsHealthy())
	assert.Equal(t, "navigation failed", b.ErrorMessage())
	assert.ErrorIs(t, b.AssignTask(NewTaskID()), ErrBotState)
	assert.ErrorIs(t, b.CompleteTask(), ErrBotState)

	b.Close()
	assert.Equal(t, BotStatusClosed, b.Status())
	_, ok = b.LastSnapshot()
	assert.False(t, ok)
	_, ok = b.CurrentTaskID()
	assert.False(t, ok)
}

func TestBot_IdleFor(t *testing.T) {
	b := readyBot(t)
	assert.False(t, b.IdleFor(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.IdleFor(time.Millisecond))

	require.NoError(t, b.AssignTask(NewTaskID()))
	assert.False(t, b.IdleFor(0))
}
