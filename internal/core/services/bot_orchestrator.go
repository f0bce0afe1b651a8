package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/manthysbr/placeharvest/internal/core/domain"
)

// BotOrchestrator fans a batch of tasks out over the pool's bots, round-robin.
// Bots work concurrently; the tasks of one bot run one after another.
type BotOrchestrator struct {
	logger *slog.Logger
	pool   *BotPoolManager
	queue  *TaskQueue
	runner *TaskRunner
}

func NewBotOrchestrator(logger *slog.Logger, pool *BotPoolManager, queue *TaskQueue, runner *TaskRunner) *BotOrchestrator {
	return &BotOrchestrator{
		logger: logger,
		pool:   pool,
		queue:  queue,
		runner: runner,
	}
}

// AssignmentPlan maps task i to bots[i % len(bots)].
func AssignmentPlan(tasks []*domain.ExtractionTask, bots []*domain.Bot) map[domain.BotID][]*domain.ExtractionTask {
	plan := make(map[domain.BotID][]*domain.ExtractionTask, len(bots))
	if len(bots) == 0 {
		return plan
	}
	for i, task := range tasks {
		bot := bots[i%len(bots)]
		plan[bot.ID()] = append(plan[bot.ID()], task)
	}
	return plan
}

// StartExtraction runs every task and waits for all of them. The pool is
// closed when it returns, whatever happened. Individual task failures are
// recorded on the tasks and never returned.
func (o *BotOrchestrator) StartExtraction(ctx context.Context, tasks []*domain.ExtractionTask) error {
	defer o.pool.CloseAll(context.WithoutCancel(ctx))

	o.logger.Info("orchestrator start", "num_tasks", len(tasks))
	o.queue.EnqueueMany(tasks)

	bots := o.pool.AllBots()
	if len(bots) == 0 {
		if len(tasks) == 0 {
			return nil
		}
		return fmt.Errorf("%w: no bots in pool for %d tasks", domain.ErrBotState, len(tasks))
	}

	claimed := make([]*domain.ExtractionTask, 0, len(tasks))
	for len(claimed) < len(tasks) {
		task, ok := o.queue.ClaimNext()
		if !ok {
			break
		}
		claimed = append(claimed, task)
	}
	plan := AssignmentPlan(claimed, bots)

	// assignment happens before any pairing starts so observers see it at once
	type pairing struct {
		task     *domain.ExtractionTask
		assigned error
	}
	lanes := make([][]pairing, len(bots))
	for i, bot := range bots {
		for _, task := range plan[bot.ID()] {
			lanes[i] = append(lanes[i], pairing{task: task, assigned: o.runner.Assign(task, bot)})
		}
	}

	var wg sync.WaitGroup
	for i, lane := range lanes {
		if len(lane) == 0 {
			continue
		}
		bot := bots[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n, p := range lane {
				if err := o.prepare(bot, p.task, n, p.assigned); err != nil {
					// the task never ran, so it keeps its attempts for a later run
					o.logger.Warn("skipping pairing", "bot_id", bot.ID(), "task_id", p.task.ID, "error", err)
					o.runner.Release(ctx, p.task, err.Error())
					continue
				}
				o.runner.Run(ctx, bot, p.task)
			}
		}()
	}
	wg.Wait()

	o.logger.Info("orchestrator completed", "num_tasks", len(tasks))
	return nil
}

// prepare points the bot at the n-th task of its lane. The first task was
// assigned up front; later ones are re-assigned once the previous finished.
func (o *BotOrchestrator) prepare(bot *domain.Bot, task *domain.ExtractionTask, n int, assigned error) error {
	if assigned != nil {
		return assigned
	}
	if n == 0 {
		return nil
	}
	if err := bot.AssignTask(task.ID); err != nil {
		return err
	}
	o.runner.publisher.PublishDomain(bot.PullEvents()...)
	return nil
}
