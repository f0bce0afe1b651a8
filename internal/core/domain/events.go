package domain

import "time"

// EventKind names a lifecycle notification emitted by an entity.
type EventKind string

const (
	EventCampaignCreated  EventKind = "campaign.created"
	EventCampaignTasks    EventKind = "campaign.tasks_added"
	EventCampaignStatus   EventKind = "campaign.status_changed"
	EventTaskStarted      EventKind = "task.started"
	EventTaskCompleted    EventKind = "task.completed"
	EventTaskFailed       EventKind = "task.failed"
	EventBotInitialized   EventKind = "bot.initialized"
	EventBotTaskAssigned  EventKind = "bot.task_assigned"
	EventBotSnapshot      EventKind = "bot.snapshot_captured"
	EventBotTaskCompleted EventKind = "bot.task_completed"
	EventBotError         EventKind = "bot.error"
	EventBotClosed        EventKind = "bot.closed"
)

// Event is a plain record of a state transition. Entities collect them and
// a service delivers them, so a transition never waits on delivery.
type Event struct {
	Kind        EventKind `json:"kind"`
	AggregateID string    `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`

	Status          string       `json:"status,omitempty"`
	TaskID          string       `json:"task_id,omitempty"`
	BotID           string       `json:"bot_id,omitempty"`
	SearchSeed      string       `json:"search_seed,omitempty"`
	Location        string       `json:"location,omitempty"`
	Error           string       `json:"error,omitempty"`
	Count           int          `json:"count,omitempty"`
	DurationSeconds *float64     `json:"duration_seconds,omitempty"`
	Snapshot        *BotSnapshot `json:"snapshot,omitempty"`
}

// eventLog is embedded by entities that emit events.
type eventLog struct {
	events []Event
}

func (l *eventLog) record(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	l.events = append(l.events, e)
}

func (l *eventLog) drain() []Event {
	out := l.events
	l.events = nil
	return out
}
