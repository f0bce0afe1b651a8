package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/ports"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// WorkerPoolConfig defines the size and pacing of a pull-based run.
type WorkerPoolConfig struct {
	Workers       int
	MaxConcurrent int64 // running pairings across all workers, defaults to Workers
	Stagger       StaggerRange
	MaxPasses     int // dispatcher reloads after the first pass, for retries
}

// ExtractionWorkerPool runs a campaign with one worker per bot. Workers
// pull ids from the dispatcher until it is empty, then the dispatcher is
// reloaded so failed tasks with attempts left get another pass.
type ExtractionWorkerPool struct {
	logger     *slog.Logger
	pool       *BotPoolManager
	dispatcher *ExtractionTaskDispatcher
	tasks      ports.TaskRepository
	runner     *TaskRunner
	campaigns  *CampaignService
	config     WorkerPoolConfig
	semaphore  *semaphore.Weighted
}

func NewExtractionWorkerPool(
	logger *slog.Logger,
	pool *BotPoolManager,
	dispatcher *ExtractionTaskDispatcher,
	tasks ports.TaskRepository,
	runner *TaskRunner,
	campaigns *CampaignService,
	cfg WorkerPoolConfig,
) *ExtractionWorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = domain.DefaultMaxBots
	}
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = int64(cfg.Workers)
	}
	return &ExtractionWorkerPool{
		logger:     logger,
		pool:       pool,
		dispatcher: dispatcher,
		tasks:      tasks,
		runner:     runner,
		campaigns:  campaigns,
		config:     cfg,
		semaphore:  semaphore.NewWeighted(limit),
	}
}

// Run processes every claimable task of the campaign and finalizes it. The
// bot pool is torn down before Run returns.
func (p *ExtractionWorkerPool) Run(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	campaign, err := p.campaigns.StartCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	maxAttempts := campaign.Config.MaxAttempts

	defer p.pool.CloseAll(context.WithoutCancel(ctx))

	workers := p.config.Workers
	if campaign.Config.MaxBots > 0 && campaign.Config.MaxBots < workers {
		workers = campaign.Config.MaxBots
	}
	if err := p.pool.InitializePool(ctx, workers, p.config.Stagger); err != nil {
		return nil, fmt.Errorf("failed to initialize bot pool: %w", err)
	}

	for pass := 0; pass <= p.config.MaxPasses; pass++ {
		loaded, err := p.dispatcher.LoadTasks(ctx, id, maxAttempts)
		if err != nil {
			return nil, err
		}
		if loaded == 0 {
			break
		}
		p.logger.Info("worker pass starting", "campaign_id", id, "pass", pass+1, "tasks", loaded)

		healthy, err := p.drain(ctx, maxAttempts)
		if err != nil {
			return nil, err
		}
		p.logger.Info("worker pass finished", "campaign_id", id, "pass", pass+1,
			"healthy_bots", healthy, "idle_bots", len(p.pool.IdleBots(0)))
		if healthy == 0 {
			p.logger.Warn("no healthy bots left", "campaign_id", id, "remaining", p.dispatcher.Remaining())
			break
		}
	}

	return p.campaigns.FinalizeCampaign(context.WithoutCancel(ctx), id)
}

// drain runs the workers until the dispatcher is empty and returns how
// many bots are still usable.
func (p *ExtractionWorkerPool) drain(ctx context.Context, maxAttempts int) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	bots := p.pool.AllBots()
	for _, bot := range bots {
		if !bot.IsHealthy() {
			continue
		}
		g.Go(func() error {
			return p.work(gctx, bot, maxAttempts)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	healthy := 0
	for _, bot := range bots {
		if bot.IsHealthy() {
			healthy++
		}
	}
	return healthy, nil
}

func (p *ExtractionWorkerPool) work(ctx context.Context, bot *domain.Bot, maxAttempts int) error {
	for bot.IsHealthy() {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, ok := p.dispatcher.ClaimNext()
		if !ok {
			return nil
		}

		task, err := p.tasks.GetTask(ctx, id)
		if err != nil {
			p.logger.Error("failed to load claimed task", "task_id", id, "error", err)
			continue
		}
		if !task.IsClaimable(maxAttempts) {
			p.logger.Warn("claimed task is no longer claimable", "task_id", id, "status", task.Status)
			continue
		}

		if err := p.semaphore.Acquire(ctx, 1); err != nil {
			return err
		}
		if err := p.runner.Assign(task, bot); err != nil {
			p.runner.Release(ctx, task, err.Error())
		} else {
			p.runner.Run(ctx, bot, task)
		}
		p.semaphore.Release(1)
	}
	return nil
}
