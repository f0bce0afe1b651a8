package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/manthysbr/placeharvest/internal/core/domain"
)

// TaskQueue is the orchestrator's unbounded FIFO of task entities.
type TaskQueue struct {
	logger *slog.Logger

	mu     sync.Mutex
	items  []*domain.ExtractionTask
	notify chan struct{}
}

var _ Claimer[*domain.ExtractionTask] = (*TaskQueue)(nil)

func NewTaskQueue(logger *slog.Logger) *TaskQueue {
	return &TaskQueue{
		logger: logger,
		notify: make(chan struct{}, 1),
	}
}

func (q *TaskQueue) Enqueue(task *domain.ExtractionTask) {
	q.mu.Lock()
	q.items = append(q.items, task)
	q.mu.Unlock()
	q.signal()
}

func (q *TaskQueue) EnqueueMany(tasks []*domain.ExtractionTask) {
	if len(tasks) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, tasks...)
	q.mu.Unlock()
	q.signal()
	q.logger.Info("tasks enqueued", "count", len(tasks))
}

// Dequeue blocks until a task is available or ctx is done.
func (q *TaskQueue) Dequeue(ctx context.Context) (*domain.ExtractionTask, error) {
	for {
		if task, ok := q.ClaimNext(); ok {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *TaskQueue) ClaimNext() (*domain.ExtractionTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	task := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return task, true
}

func (q *TaskQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *TaskQueue) HasPending() bool { return q.PendingCount() > 0 }

func (q *TaskQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
