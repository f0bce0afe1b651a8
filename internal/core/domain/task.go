package domain

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// ExtractionTask is one search seed x location unit of work inside a campaign.
type ExtractionTask struct {
	ID              TaskID     `json:"id"`
	CampaignID      CampaignID `json:"campaign_id"`
	SearchSeed      string     `json:"search_seed"`
	Geoname         Geoname    `json:"geoname"`
	Status          TaskStatus `json:"status"`
	Attempts        int        `json:"attempts"`
	LastError       *string    `json:"last_error,omitempty"`
	PlacesExtracted int        `json:"places_extracted"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`

	eventLog
}

func NewExtractionTask(campaignID CampaignID, searchSeed string, geoname Geoname) *ExtractionTask {
	now := time.Now().UTC()
	return &ExtractionTask{
		ID:         NewTaskID(),
		CampaignID: campaignID,
		SearchSeed: searchSeed,
		Geoname:    geoname,
		Status:     TaskStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (t *ExtractionTask) Title() string {
	return t.SearchSeed + " " + t.Geoname.Name
}

// SearchQuery is the text typed into the map search box.
func (t *ExtractionTask) SearchQuery() string {
	return t.SearchSeed + " in " + t.Geoname.Name
}

func (t *ExtractionTask) MarkInProgress() error {
	if t.Status == TaskStatusCompleted {
		return fmt.Errorf("%w: task %s is completed and cannot be started again", ErrTaskState, t.ID)
	}
	now := time.Now().UTC()
	t.Status = TaskStatusInProgress
	t.StartedAt = &now
	t.UpdatedAt = now
	t.record(Event{
		Kind:        EventTaskStarted,
		AggregateID: string(t.ID),
		OccurredAt:  now,
		TaskID:      string(t.ID),
		SearchSeed:  t.SearchSeed,
		Location:    t.Geoname.Name,
	})
	return nil
}

func (t *ExtractionTask) MarkCompleted() error {
	if t.Status == TaskStatusCompleted {
		return fmt.Errorf("%w: task %s is already completed", ErrTaskState, t.ID)
	}
	now := time.Now().UTC()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now

	var duration *float64
	if t.StartedAt != nil {
		d := now.Sub(*t.StartedAt).Seconds()
		duration = &d
	}
	t.record(Event{
		Kind:            EventTaskCompleted,
		AggregateID:     string(t.ID),
		OccurredAt:      now,
		TaskID:          string(t.ID),
		Count:           t.PlacesExtracted,
		DurationSeconds: duration,
	})
	return nil
}

// MarkFailed records a failed attempt. An empty message is stored as nil.
func (t *ExtractionTask) MarkFailed(errorMessage string) error {
	if t.Status == TaskStatusCompleted {
		return fmt.Errorf("%w: task %s is completed and cannot fail", ErrTaskState, t.ID)
	}
	now := time.Now().UTC()
	t.Status = TaskStatusFailed
	t.Attempts++
	t.LastError = nil
	if errorMessage != "" {
		msg := errorMessage
		t.LastError = &msg
	} else {
		errorMessage = "unknown error"
	}
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.record(Event{
		Kind:        EventTaskFailed,
		AggregateID: string(t.ID),
		OccurredAt:  now,
		TaskID:      string(t.ID),
		Error:       errorMessage,
		Count:       t.PlacesExtracted,
	})
	return nil
}

// MarkPending resets a task for another run. Completed tasks stay completed.
func (t *ExtractionTask) MarkPending() error {
	if t.Status == TaskStatusCompleted {
		return fmt.Errorf("%w: cannot mark completed task %s as pending", ErrTaskState, t.ID)
	}
	t.Status = TaskStatusPending
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *ExtractionTask) CanRetry(maxAttempts int) bool {
	return t.Status == TaskStatusFailed && t.Attempts < maxAttempts
}

func (t *ExtractionTask) IsExhausted(maxAttempts int) bool {
	return t.Attempts >= maxAttempts
}

// IsFinal reports whether the task can never run again.
func (t *ExtractionTask) IsFinal(maxAttempts int) bool {
	return t.Status == TaskStatusCompleted || (t.Status == TaskStatusFailed && t.IsExhausted(maxAttempts))
}

// IsClaimable mirrors the dispatcher's load criterion.
func (t *ExtractionTask) IsClaimable(maxAttempts int) bool {
	return t.Status == TaskStatusPending || t.CanRetry(maxAttempts)
}

func (t *ExtractionTask) PullEvents() []Event { return t.drain() }
