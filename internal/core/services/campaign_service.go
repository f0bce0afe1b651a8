package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/ports"
)

// CampaignService carries the campaign commands and queries.
type CampaignService struct {
	logger    *slog.Logger
	campaigns ports.CampaignRepository
	tasks     ports.TaskRepository
	selection *GeonameSelectionService
	publisher ports.EventPublisher

	// config is immutable after creation, so max attempts are cached per
	// campaign instead of reloading every task on each outcome.
	mu          sync.Mutex
	maxAttempts map[domain.CampaignID]int
}

var _ OutcomeRecorder = (*CampaignService)(nil)

func NewCampaignService(
	logger *slog.Logger,
	campaigns ports.CampaignRepository,
	tasks ports.TaskRepository,
	selection *GeonameSelectionService,
	publisher ports.EventPublisher,
) *CampaignService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &CampaignService{
		logger:    logger,
		campaigns: campaigns,
		tasks:     tasks,
		selection: selection,
		publisher: publisher,

		maxAttempts: make(map[domain.CampaignID]int),
	}
}

// CreateCampaign selects the geonames of the config, builds one task per
// geoname and seed, and persists the pending campaign.
func (s *CampaignService) CreateCampaign(ctx context.Context, title string, cfg domain.CampaignConfig) (*domain.Campaign, error) {
	cfg, err := domain.NewCampaignConfig(cfg)
	if err != nil {
		return nil, err
	}

	campaign := domain.NewCampaign(title, cfg)

	geonames, err := s.selection.Select(ctx, cfg.Selection)
	if err != nil {
		return nil, err
	}
	if len(geonames) == 0 {
		return nil, fmt.Errorf("%w for %s scope %s", domain.ErrNoGeonames, cfg.Selection.Scope, cfg.Selection.DisplayName())
	}

	tasks := make([]*domain.ExtractionTask, 0, len(geonames)*len(cfg.SearchSeeds))
	for _, g := range geonames {
		for _, seed := range cfg.SearchSeeds {
			tasks = append(tasks, domain.NewExtractionTask(campaign.ID, seed, g))
		}
	}
	if err := campaign.AddTasks(tasks); err != nil {
		return nil, err
	}

	if err := s.campaigns.SaveCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to save campaign: %w", err)
	}
	s.publisher.PublishDomain(campaign.PullEvents()...)

	s.logger.Info("campaign created", "campaign_id", campaign.ID, "title", campaign.Title, "total_tasks", campaign.TotalTasks)
	return campaign, nil
}

// StartCampaign moves a pending campaign to in progress. Starting a campaign
// that is already in progress is a no-op.
func (s *CampaignService) StartCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == domain.CampaignStatusInProgress {
		return campaign, nil
	}
	if !campaign.CanBeStarted() {
		return nil, fmt.Errorf("%w: campaign %s is %s with %d tasks", domain.ErrCampaignState, id, campaign.Status, campaign.TotalTasks)
	}
	if err := campaign.MarkInProgress(); err != nil {
		return nil, err
	}
	return campaign, s.save(ctx, campaign, "campaign started")
}

// ResumeCampaign puts a failed campaign back to pending. Tasks are left as
// they are: failed ones with attempts left are claimable again.
func (s *CampaignService) ResumeCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := campaign.Resume(); err != nil {
		return nil, err
	}
	return campaign, s.save(ctx, campaign, "campaign resumed")
}

func (s *CampaignService) ArchiveCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := campaign.MarkArchived(); err != nil {
		return nil, err
	}
	return campaign, s.save(ctx, campaign, "campaign archived")
}

// RecordTaskOutcome persists a completed or failed task. The campaign
// counter only moves on a final transition: a completion, or a failure that
// used up the last attempt. A failure that can still be retried is saved
// without counting, so completed plus failed never exceeds the total.
func (s *CampaignService) RecordTaskOutcome(ctx context.Context, task *domain.ExtractionTask) error {
	if task.Status != domain.TaskStatusCompleted && task.Status != domain.TaskStatusFailed {
		return fmt.Errorf("%w: task %s is %s, not terminal", domain.ErrTaskState, task.ID, task.Status)
	}
	final := task.Status == domain.TaskStatusCompleted
	if !final {
		maxAttempts, err := s.campaignMaxAttempts(ctx, task.CampaignID)
		if err != nil {
			return err
		}
		final = task.IsExhausted(maxAttempts)
	}
	if err := s.tasks.RecordTaskOutcome(ctx, task, final); err != nil {
		return fmt.Errorf("failed to record outcome of task %s: %w", task.ID, err)
	}
	return nil
}

// ReleaseTask hands a task that never ran back to pending. No attempt is
// charged and no counter moves.
func (s *CampaignService) ReleaseTask(ctx context.Context, task *domain.ExtractionTask) error {
	if err := task.MarkPending(); err != nil {
		return err
	}
	if err := s.tasks.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to release task %s: %w", task.ID, err)
	}
	return nil
}

func (s *CampaignService) campaignMaxAttempts(ctx context.Context, id domain.CampaignID) (int, error) {
	s.mu.Lock()
	n, ok := s.maxAttempts[id]
	s.mu.Unlock()
	if ok {
		return n, nil
	}

	campaign, err := s.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return 0, err
	}
	n = campaign.Config.MaxAttempts

	s.mu.Lock()
	s.maxAttempts[id] = n
	s.mu.Unlock()
	return n, nil
}

// FinalizeCampaign decides the end state of an in progress campaign. While
// any task can still run nothing changes. Otherwise the campaign completes
// when at least one task completed and fails when none did.
func (s *CampaignService) FinalizeCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != domain.CampaignStatusInProgress {
		return campaign, nil
	}

	maxAttempts := campaign.Config.MaxAttempts
	completed, open := 0, 0
	for _, t := range campaign.Tasks {
		switch {
		case t.Status == domain.TaskStatusCompleted:
			completed++
		case !t.IsFinal(maxAttempts):
			open++
		}
	}
	if open > 0 {
		s.logger.Info("campaign still has open tasks", "campaign_id", id, "open_tasks", open)
		return campaign, nil
	}

	if completed > 0 {
		err = campaign.MarkCompleted()
	} else {
		err = campaign.MarkFailed()
	}
	if err != nil {
		return nil, err
	}
	return campaign, s.save(ctx, campaign, "campaign finalized")
}

func (s *CampaignService) GetCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	return s.campaigns.GetCampaign(ctx, id)
}

func (s *CampaignService) ListCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	return s.campaigns.ListCampaigns(ctx)
}

func (s *CampaignService) ListTasks(ctx context.Context, id domain.CampaignID) ([]*domain.ExtractionTask, error) {
	return s.tasks.ListCampaignTasks(ctx, id)
}

// ClaimableTasks returns the tasks of a campaign that may run now, in
// creation order.
func (s *CampaignService) ClaimableTasks(ctx context.Context, id domain.CampaignID) ([]*domain.ExtractionTask, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []*domain.ExtractionTask
	for _, t := range campaign.Tasks {
		if t.IsClaimable(campaign.Config.MaxAttempts) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *CampaignService) save(ctx context.Context, campaign *domain.Campaign, msg string) error {
	if err := s.campaigns.SaveCampaign(ctx, campaign); err != nil {
		return fmt.Errorf("failed to save campaign %s: %w", campaign.ID, err)
	}
	s.publisher.PublishDomain(campaign.PullEvents()...)
	s.logger.Info(msg, "campaign_id", campaign.ID, "status", campaign.Status)
	return nil
}
