package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/ports"
)

const mapsSearchURL = "https://www.google.com/maps/search/"

// RunnerConfig holds the pacing of one bot-task pairing.
type RunnerConfig struct {
	SettleDelay      time.Duration
	SnapshotInterval time.Duration
	MaxSnapshots     int
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		SettleDelay:      2 * time.Second,
		SnapshotInterval: 3 * time.Second,
		MaxSnapshots:     30,
	}
}

// OutcomeRecorder persists what happened to a task outside the bot: every
// completed or failed run, and every task handed back without running.
type OutcomeRecorder interface {
	RecordTaskOutcome(ctx context.Context, task *domain.ExtractionTask) error
	ReleaseTask(ctx context.Context, task *domain.ExtractionTask) error
}

// TaskRunner executes one task on one bot. Environment failures end up as
// task and bot state; Run itself never returns them.
type TaskRunner struct {
	logger    *slog.Logger
	pool      *BotPoolManager
	publisher ports.EventPublisher
	recorder  OutcomeRecorder
	metrics   *Metrics
	config    RunnerConfig
}

func NewTaskRunner(logger *slog.Logger, pool *BotPoolManager, publisher ports.EventPublisher, recorder OutcomeRecorder, metrics *Metrics, cfg RunnerConfig) *TaskRunner {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	def := DefaultRunnerConfig()
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.SnapshotInterval < 0 {
		cfg.SnapshotInterval = def.SnapshotInterval
	}
	if cfg.MaxSnapshots < 0 {
		cfg.MaxSnapshots = def.MaxSnapshots
	}
	return &TaskRunner{
		logger:    logger,
		pool:      pool,
		publisher: publisher,
		recorder:  recorder,
		metrics:   metrics,
		config:    cfg,
	}
}

// SearchURL builds the map search address for a query.
func SearchURL(query string) string {
	return mapsSearchURL + strings.ReplaceAll(query, " ", "+")
}

// Assign marks the task started and the bot busy with it.
func (r *TaskRunner) Assign(task *domain.ExtractionTask, bot *domain.Bot) error {
	if err := task.MarkInProgress(); err != nil {
		return err
	}
	r.publisher.PublishDomain(task.PullEvents()...)
	if err := bot.AssignTask(task.ID); err != nil {
		return err
	}
	r.metrics.botStatus(domain.BotStatusProcessing)
	r.publisher.PublishDomain(bot.PullEvents()...)
	return nil
}

// Run executes an already assigned pairing to completion or failure.
func (r *TaskRunner) Run(ctx context.Context, bot *domain.Bot, task *domain.ExtractionTask) {
	driver, ok := r.pool.Driver(bot.ID())
	if !ok {
		msg := fmt.Sprintf("%s for bot %s", domain.ErrDriverNotFound, bot.ID())
		r.logger.Error("bot driver not found", "bot_id", bot.ID(), "task_id", task.ID)
		r.fail(ctx, bot, task, msg)
		return
	}

	r.logger.Info("bot task starting",
		"bot_id", bot.ID(),
		"task_id", task.ID,
		"geoname", task.Geoname.Name,
		"search_seed", task.SearchSeed,
	)

	snapshots, err := r.browse(ctx, bot, task, driver)
	if err != nil {
		r.logger.Error("bot task failed", "bot_id", bot.ID(), "task_id", task.ID, "error", err)
		r.fail(ctx, bot, task, err.Error())
		return
	}

	r.logger.Info("bot task completed", "bot_id", bot.ID(), "task_id", task.ID, "screenshots_captured", snapshots)
	if err := task.MarkCompleted(); err != nil {
		r.fail(ctx, bot, task, err.Error())
		return
	}
	r.finish(ctx, task)

	if err := bot.CompleteTask(); err != nil {
		// the bot left processing while browsing, keep whatever state it has
		r.logger.Warn("bot could not release task", "bot_id", bot.ID(), "task_id", task.ID, "error", err)
	} else {
		r.metrics.botStatus(domain.BotStatusIdle)
	}
	r.publisher.PublishDomain(bot.PullEvents()...)
}

// Reject fails a task that never got to run, e.g. because its bot broke
// on an earlier pairing.
func (r *TaskRunner) Reject(ctx context.Context, task *domain.ExtractionTask, reason string) {
	if err := task.MarkFailed(reason); err != nil {
		r.logger.Error("failed to mark task failed", "task_id", task.ID, "error", err)
		return
	}
	r.finish(ctx, task)
}

// Release hands back a task that was assigned but never ran. It goes back to
// pending with its attempts untouched.
func (r *TaskRunner) Release(ctx context.Context, task *domain.ExtractionTask, reason string) {
	r.logger.Info("releasing task", "task_id", task.ID, "reason", reason)
	if r.recorder == nil {
		if err := task.MarkPending(); err != nil {
			r.logger.Error("failed to release task", "task_id", task.ID, "error", err)
		}
		return
	}
	if err := r.recorder.ReleaseTask(context.WithoutCancel(ctx), task); err != nil {
		r.logger.Error("failed to release task", "task_id", task.ID, "error", err)
	}
}

func (r *TaskRunner) browse(ctx context.Context, bot *domain.Bot, task *domain.ExtractionTask, driver ports.BrowserDriver) (int, error) {
	if err := driver.NavigateTo(ctx, SearchURL(task.SearchQuery())); err != nil {
		return 0, fmt.Errorf("navigation failed: %w", err)
	}
	if err := sleepCtx(ctx, r.config.SettleDelay); err != nil {
		return 0, err
	}

	count := 0
	for bot.IsProcessing() && count < r.config.MaxSnapshots {
		shot, err := driver.TakeScreenshot(ctx)
		if err != nil {
			return count, fmt.Errorf("screenshot failed: %w", err)
		}
		bot.UpdateSnapshot(domain.NewBotSnapshot(bot.ID(), bot.Status(), shot, driver.PageURL(), task.ID))
		r.publisher.PublishDomain(bot.PullEvents()...)
		count++

		if count < r.config.MaxSnapshots {
			if err := sleepCtx(ctx, r.config.SnapshotInterval); err != nil {
				return count, err
			}
		}
	}
	return count, nil
}

func (r *TaskRunner) fail(ctx context.Context, bot *domain.Bot, task *domain.ExtractionTask, msg string) {
	bot.MarkError(msg)
	r.metrics.botStatus(domain.BotStatusError)
	r.publisher.PublishDomain(bot.PullEvents()...)
	r.Reject(ctx, task, msg)
}

func (r *TaskRunner) finish(ctx context.Context, task *domain.ExtractionTask) {
	r.metrics.taskFinished(flavourExtraction, task.Status)
	r.publisher.PublishDomain(task.PullEvents()...)
	if r.recorder == nil {
		return
	}
	// the outcome is recorded even when the run itself was cancelled
	if err := r.recorder.RecordTaskOutcome(context.WithoutCancel(ctx), task); err != nil {
		r.logger.Error("failed to record task outcome", "task_id", task.ID, "status", task.Status, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
