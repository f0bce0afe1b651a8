package domain

import (
	"fmt"
	"time"
)

// WebsiteEnrichmentTask enriches an already extracted place from its website.
// It belongs to no campaign; the enrichment dispatcher loads them globally.
type WebsiteEnrichmentTask struct {
	ID          EnrichmentTaskID `json:"id"`
	PlaceID     PlaceID          `json:"place_id"`
	WebsiteURL  string           `json:"website_url"`
	Status      TaskStatus       `json:"status"`
	Attempts    int              `json:"attempts"`
	LastError   *string          `json:"last_error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func NewWebsiteEnrichmentTask(placeID PlaceID, websiteURL string) *WebsiteEnrichmentTask {
	now := time.Now().UTC()
	return &WebsiteEnrichmentTask{
		ID:         NewEnrichmentTaskID(),
		PlaceID:    placeID,
		WebsiteURL: websiteURL,
		Status:     TaskStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (t *WebsiteEnrichmentTask) Title() string {
	return fmt.Sprintf("Enrichment for place %s via %s", t.PlaceID, t.WebsiteURL)
}

func (t *WebsiteEnrichmentTask) MarkInProgress() {
	now := time.Now().UTC()
	t.Status = TaskStatusInProgress
	t.StartedAt = &now
	t.UpdatedAt = now
}

func (t *WebsiteEnrichmentTask) MarkCompleted() {
	now := time.Now().UTC()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
}

func (t *WebsiteEnrichmentTask) MarkFailed(errorMessage string) {
	now := time.Now().UTC()
	t.Status = TaskStatusFailed
	t.Attempts++
	t.LastError = nil
	if errorMessage != "" {
		t.LastError = &errorMessage
	}
	t.CompletedAt = &now
	t.UpdatedAt = now
}

func (t *WebsiteEnrichmentTask) MarkPending() error {
	if t.Status == TaskStatusCompleted {
		return fmt.Errorf("%w: cannot mark completed enrichment task %s as pending", ErrTaskState, t.ID)
	}
	t.Status = TaskStatusPending
	t.UpdatedAt = time.Now().UTC()
	return nil
}
