package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

type CampaignStatus string

const (
	CampaignStatusPending    CampaignStatus = "pending"
	CampaignStatusInProgress CampaignStatus = "in_progress"
	CampaignStatusCompleted  CampaignStatus = "completed"
	CampaignStatusFailed     CampaignStatus = "failed"
	CampaignStatusArchived   CampaignStatus = "archived"
)

// Campaign is the aggregate root owning its extraction tasks.
//
// Counters are only ever incremented; CompletedTasks+FailedTasks stays within
// TotalTasks as long as each terminal task transition is counted once.
type Campaign struct {
	ID             CampaignID        `json:"id"`
	Title          string            `json:"title"`
	Status         CampaignStatus    `json:"status"`
	Config         CampaignConfig    `json:"config"`
	Tasks          []*ExtractionTask `json:"tasks"`
	TotalTasks     int               `json:"total_tasks"`
	CompletedTasks int               `json:"completed_tasks"`
	FailedTasks    int               `json:"failed_tasks"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`

	eventLog
}

// NewCampaign creates a pending campaign. Without a title one is derived
// from the first seed, the selection's display name and the current time.
func NewCampaign(title string, cfg CampaignConfig) *Campaign {
	now := time.Now().UTC()
	title = strings.TrimSpace(title)
	if title == "" {
		seed := "Campaign"
		if len(cfg.SearchSeeds) > 0 {
			seed = titleCase(cfg.SearchSeeds[0])
		}
		title = strings.Join(strings.Fields(fmt.Sprintf("%s %s %s",
			seed, cfg.Selection.DisplayName(), now.Format("2006-01-02 15:04:05"))), " ")
	}

	c := &Campaign{
		ID:        NewCampaignID(),
		Title:     title,
		Status:    CampaignStatusPending,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.record(Event{Kind: EventCampaignCreated, AggregateID: string(c.ID), OccurredAt: now, Status: string(c.Status)})
	return c
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// AddTasks attaches generated tasks. Only pending campaigns accept tasks and
// the call is all-or-nothing.
func (c *Campaign) AddTasks(tasks []*ExtractionTask) error {
	if c.Status != CampaignStatusPending {
		return fmt.Errorf("%w: cannot add tasks to %s campaign, tasks can only be added to pending campaigns",
			ErrCampaignState, c.Status)
	}
	if len(c.Tasks) > 0 {
		return fmt.Errorf("%w: campaign %s already has %d tasks", ErrCampaignTasks, c.ID, len(c.Tasks))
	}
	if len(tasks) == 0 {
		return fmt.Errorf("%w: cannot add empty task list", ErrCampaignTasks)
	}

	seen := make(map[TaskID]struct{}, len(c.Tasks)+len(tasks))
	for _, t := range c.Tasks {
		seen[t.ID] = struct{}{}
	}
	var duplicates []string
	for _, t := range tasks {
		if _, ok := seen[t.ID]; ok {
			duplicates = append(duplicates, string(t.ID))
			continue
		}
		seen[t.ID] = struct{}{}
	}
	if len(duplicates) > 0 {
		if len(duplicates) > 3 {
			duplicates = append(duplicates[:3], "...")
		}
		return fmt.Errorf("%w: duplicate tasks detected: %s", ErrCampaignTasks, strings.Join(duplicates, ", "))
	}

	c.Tasks = append(c.Tasks, tasks...)
	c.TotalTasks = len(c.Tasks)
	c.touch()
	c.record(Event{Kind: EventCampaignTasks, AggregateID: string(c.ID), Count: len(tasks)})
	return nil
}

func (c *Campaign) MarkTaskCompleted() {
	c.CompletedTasks++
	c.touch()
}

func (c *Campaign) MarkTaskFailed() {
	c.FailedTasks++
	c.touch()
}

func (c *Campaign) MarkInProgress() error {
	switch c.Status {
	case CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusArchived:
		return fmt.Errorf("%w: cannot start a %s campaign", ErrCampaignState, c.Status)
	}
	now := time.Now().UTC()
	c.Status = CampaignStatusInProgress
	c.StartedAt = &now
	c.touch()
	c.statusChanged()
	return nil
}

func (c *Campaign) MarkCompleted() error {
	if c.Status != CampaignStatusInProgress {
		return fmt.Errorf("%w: cannot complete campaign in %s state, must be in_progress", ErrCampaignState, c.Status)
	}
	now := time.Now().UTC()
	c.Status = CampaignStatusCompleted
	c.CompletedAt = &now
	c.touch()
	c.statusChanged()
	return nil
}

func (c *Campaign) MarkFailed() error {
	switch c.Status {
	case CampaignStatusCompleted, CampaignStatusArchived:
		return fmt.Errorf("%w: cannot fail a %s campaign", ErrCampaignState, c.Status)
	}
	now := time.Now().UTC()
	c.Status = CampaignStatusFailed
	c.CompletedAt = &now
	c.touch()
	c.statusChanged()
	return nil
}

// Resume puts a failed campaign back to pending and clears its failure count.
func (c *Campaign) Resume() error {
	if c.Status != CampaignStatusFailed {
		return fmt.Errorf("%w: cannot resume campaign in %s state, only failed campaigns can be resumed",
			ErrCampaignState, c.Status)
	}
	c.Status = CampaignStatusPending
	c.FailedTasks = 0
	c.CompletedAt = nil
	c.touch()
	c.statusChanged()
	return nil
}

func (c *Campaign) MarkArchived() error {
	if !c.CanBeArchived() {
		return fmt.Errorf("%w: cannot archive campaign in %s state, only completed or failed campaigns can be archived",
			ErrCampaignState, c.Status)
	}
	c.Status = CampaignStatusArchived
	c.touch()
	c.statusChanged()
	return nil
}

func (c *Campaign) Progress() float64 {
	if c.TotalTasks == 0 {
		return 0
	}
	return float64(c.CompletedTasks) / float64(c.TotalTasks)
}

func (c *Campaign) CompletionPercentage() float64 { return c.Progress() * 100 }

func (c *Campaign) CanBeStarted() bool {
	return c.Status == CampaignStatusPending && c.TotalTasks > 0
}

func (c *Campaign) CanBeDeleted() bool {
	return c.Status == CampaignStatusPending && len(c.Tasks) == 0
}

func (c *Campaign) CanBeArchived() bool {
	return c.Status == CampaignStatusCompleted || c.Status == CampaignStatusFailed
}

func (c *Campaign) HasFailedTasks() bool { return c.FailedTasks > 0 }

func (c *Campaign) IsFinished() bool {
	switch c.Status {
	case CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusArchived:
		return true
	}
	return false
}

func (c *Campaign) PullEvents() []Event { return c.drain() }

func (c *Campaign) touch() {
	c.UpdatedAt = time.Now().UTC()
}

func (c *Campaign) statusChanged() {
	c.record(Event{Kind: EventCampaignStatus, AggregateID: string(c.ID), Status: string(c.Status)})
}
