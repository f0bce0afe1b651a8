package domain

import (
	"fmt"
	"sync"
	"time"
)

type BotStatus string

const (
	BotStatusInitializing BotStatus = "initializing"
	BotStatusIdle         BotStatus = "idle"
	BotStatusProcessing   BotStatus = "processing"
	BotStatusError        BotStatus = "error"
	BotStatusClosed       BotStatus = "closed"
)

// BotSnapshot is a point-in-time capture of a bot for monitoring. Never persisted.
type BotSnapshot struct {
	BotID          BotID     `json:"bot_id"`
	Status         BotStatus `json:"status"`
	Screenshot     []byte    `json:"screenshot"`
	CurrentURL     string    `json:"current_url"`
	CurrentTaskID  TaskID    `json:"current_task_id,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
	ViewportWidth  int       `json:"viewport_width,omitempty"`
	ViewportHeight int       `json:"viewport_height,omitempty"`
}

func NewBotSnapshot(botID BotID, status BotStatus, screenshot []byte, url string, taskID TaskID) BotSnapshot {
	return BotSnapshot{
		BotID:         botID,
		Status:        status,
		Screenshot:    screenshot,
		CurrentURL:    url,
		CurrentTaskID: taskID,
		CapturedAt:    time.Now().UTC(),
	}
}

// Bot is an ephemeral worker wrapping one browser driver. It references its
// task by id only; the task itself belongs to its campaign.
//
// Monitors read bots while a pairing mutates them, so all access is locked.
type Bot struct {
	mu sync.RWMutex

	id             BotID
	status         BotStatus
	currentTaskID  TaskID
	lastSnapshot   *BotSnapshot
	startedAt      time.Time
	lastActivityAt time.Time
	errorMessage   string

	eventLog
}

func NewBot() *Bot {
	now := time.Now().UTC()
	return &Bot{
		id:             NewBotID(),
		status:         BotStatusInitializing,
		startedAt:      now,
		lastActivityAt: now,
	}
}

func (b *Bot) ID() BotID { return b.id }

func (b *Bot) Status() BotStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *Bot) CurrentTaskID() (TaskID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.currentTaskID, b.currentTaskID != ""
}

func (b *Bot) LastSnapshot() (BotSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastSnapshot == nil {
		return BotSnapshot{}, false
	}
	return *b.lastSnapshot, true
}

func (b *Bot) ErrorMessage() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.errorMessage
}

func (b *Bot) StartedAt() time.Time { return b.startedAt }

func (b *Bot) LastActivityAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastActivityAt
}

// MarkReady moves a freshly launched bot to idle.
func (b *Bot) MarkReady() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != BotStatusInitializing {
		return fmt.Errorf("%w: can only mark ready from initializing state, current: %s", ErrBotState, b.status)
	}
	b.status = BotStatusIdle
	b.touch(Event{Kind: EventBotInitialized})
	return nil
}

// AssignTask is accepted while idle or already processing (a bot may queue
// several tasks of one batch).
func (b *Bot) AssignTask(taskID TaskID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != BotStatusIdle && b.status != BotStatusProcessing {
		return fmt.Errorf("%w: cannot assign task in state %s, must be idle or processing", ErrBotState, b.status)
	}
	b.currentTaskID = taskID
	b.status = BotStatusProcessing
	b.touch(Event{Kind: EventBotTaskAssigned, TaskID: string(taskID)})
	return nil
}

// UpdateSnapshot overwrites the previous snapshot.
func (b *Bot) UpdateSnapshot(s BotSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSnapshot = &s
	b.touch(Event{Kind: EventBotSnapshot, TaskID: string(s.CurrentTaskID), Snapshot: &s})
}

// CompleteTask releases the current task and returns the bot to idle.
func (b *Bot) CompleteTask() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != BotStatusProcessing {
		return fmt.Errorf("%w: can only complete task from processing state, current: %s", ErrBotState, b.status)
	}
	if b.currentTaskID == "" {
		return fmt.Errorf("%w: no task assigned to complete", ErrBotState)
	}
	done := b.currentTaskID
	b.currentTaskID = ""
	b.status = BotStatusIdle
	b.touch(Event{Kind: EventBotTaskCompleted, TaskID: string(done)})
	return nil
}

// MarkError is allowed from any state.
func (b *Bot) MarkError(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = BotStatusError
	b.errorMessage = message
	b.touch(Event{Kind: EventBotError, Error: message})
}

// Close drops the task reference and the snapshot. Terminal.
func (b *Bot) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = BotStatusClosed
	b.currentTaskID = ""
	b.lastSnapshot = nil
	b.touch(Event{Kind: EventBotClosed})
}

func (b *Bot) IsAvailable() bool   { return b.Status() == BotStatusIdle }
func (b *Bot) CanAcceptTask() bool { return b.Status() == BotStatusIdle }
func (b *Bot) IsProcessing() bool  { return b.Status() == BotStatusProcessing }
func (b *Bot) HasError() bool      { return b.Status() == BotStatusError }

func (b *Bot) IsHealthy() bool {
	s := b.Status()
	return s != BotStatusError && s != BotStatusClosed
}

// IdleFor reports whether the bot has sat idle for longer than d.
func (b *Bot) IdleFor(d time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status == BotStatusIdle && time.Since(b.lastActivityAt) > d
}

func (b *Bot) Uptime() time.Duration { return time.Since(b.startedAt) }

func (b *Bot) PullEvents() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drain()
}

func (b *Bot) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	task := "no_task"
	if b.currentTaskID != "" {
		task = "task=" + string(b.currentTaskID)
	}
	return fmt.Sprintf("Bot(id=%s, status=%s, %s)", b.id, b.status, task)
}

// touch must be called with mu held.
func (b *Bot) touch(e Event) {
	now := time.Now().UTC()
	b.lastActivityAt = now
	e.AggregateID = string(b.id)
	e.BotID = string(b.id)
	e.OccurredAt = now
	e.Status = string(b.status)
	b.record(e)
}
