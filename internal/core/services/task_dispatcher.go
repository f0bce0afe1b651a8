package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/ports"
)

// Claimer hands out work items one at a time. ok is false when nothing is
// left; claiming never blocks.
type Claimer[T any] interface {
	ClaimNext() (T, bool)
}

// TaskDispatcher is an in-memory work queue for storage engines that cannot
// claim rows with "skip locked". Ids are loaded once and every id reaches
// exactly one caller of ClaimNext.
type TaskDispatcher[T any] struct {
	logger  *slog.Logger
	metrics *Metrics
	flavour string

	mu          sync.RWMutex // RLock for claims, Lock to swap the queue on load
	queue       chan T
	totalLoaded int
}

func newTaskDispatcher[T any](logger *slog.Logger, metrics *Metrics, flavour string) *TaskDispatcher[T] {
	return &TaskDispatcher[T]{
		logger:  logger,
		metrics: metrics,
		flavour: flavour,
		queue:   make(chan T),
	}
}

func (d *TaskDispatcher[T]) ClaimNext() (T, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	select {
	case id := <-d.queue:
		d.metrics.taskClaimed(d.flavour, len(d.queue))
		return id, true
	default:
		var zero T
		return zero, false
	}
}

// Remaining is advisory; it may be stale as soon as it is read.
func (d *TaskDispatcher[T]) Remaining() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.queue)
}

// TotalLoaded is the size of the most recent load.
func (d *TaskDispatcher[T]) TotalLoaded() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.totalLoaded
}

// load appends ids behind whatever is still queued.
func (d *TaskDispatcher[T]) load(ids []T) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make(chan T, len(d.queue)+len(ids))
	for {
		select {
		case id := <-d.queue:
			next <- id
			continue
		default:
		}
		break
	}
	for _, id := range ids {
		next <- id
	}
	d.queue = next
	d.totalLoaded = len(ids)
	d.metrics.queueRemaining(d.flavour, len(next))

	d.logger.Info("tasks loaded to queue", "flavour", d.flavour, "total_tasks", len(ids))
	return len(ids)
}

// ExtractionTaskDispatcher loads the claimable extraction tasks of one campaign.
type ExtractionTaskDispatcher struct {
	*TaskDispatcher[domain.TaskID]
	repo ports.TaskRepository
}

var _ Claimer[domain.TaskID] = (*ExtractionTaskDispatcher)(nil)

func NewExtractionTaskDispatcher(logger *slog.Logger, repo ports.TaskRepository, metrics *Metrics) *ExtractionTaskDispatcher {
	return &ExtractionTaskDispatcher{
		TaskDispatcher: newTaskDispatcher[domain.TaskID](logger, metrics, flavourExtraction),
		repo:           repo,
	}
}

// LoadTasks snapshots pending tasks and failed ones with attempts left,
// oldest first. Tasks created or reset later need another load.
func (d *ExtractionTaskDispatcher) LoadTasks(ctx context.Context, campaignID domain.CampaignID, maxAttempts int) (int, error) {
	ids, err := d.repo.FindPendingIDs(ctx, campaignID, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending tasks for campaign %s: %w", campaignID, err)
	}
	d.logger.Info("extraction tasks loaded", "campaign_id", campaignID, "task_count", len(ids))
	return d.load(ids), nil
}

// EnrichmentTaskDispatcher loads the global enrichment backlog.
type EnrichmentTaskDispatcher struct {
	*TaskDispatcher[domain.EnrichmentTaskID]
	repo ports.EnrichmentTaskRepository
}

var _ Claimer[domain.EnrichmentTaskID] = (*EnrichmentTaskDispatcher)(nil)

func NewEnrichmentTaskDispatcher(logger *slog.Logger, repo ports.EnrichmentTaskRepository, metrics *Metrics) *EnrichmentTaskDispatcher {
	return &EnrichmentTaskDispatcher{
		TaskDispatcher: newTaskDispatcher[domain.EnrichmentTaskID](logger, metrics, flavourEnrichment),
		repo:           repo,
	}
}

func (d *EnrichmentTaskDispatcher) LoadTasks(ctx context.Context, maxAttempts int) (int, error) {
	ids, err := d.repo.FindPendingEnrichmentIDs(ctx, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending enrichment tasks: %w", err)
	}
	d.logger.Info("enrichment tasks loaded", "task_count", len(ids))
	return d.load(ids), nil
}
