package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nilcoder/taskq/internal/domain"
	"github.com/nilcoder/taskq/internal/metrics"
	"github.com/nilcoder/taskq/internal/service"
)

// CleanupWorker deletes terminal tasks once they pass their retention
// deadline. A task vanishing between the list and the delete (raced by
// another cleanup pass, or by a caller's explicit DeleteTask) is not an
// error.
type CleanupWorker struct {
	*base

	taskService   *service.TaskService
	cleanupPolicy domain.CleanupPolicy
}

func NewCleanupWorker(interval time.Duration, taskService *service.TaskService, cleanupPolicy domain.CleanupPolicy, logger *slog.Logger) *CleanupWorker {
	w := &CleanupWorker{taskService: taskService, cleanupPolicy: cleanupPolicy}
	w.base = newBase("cleanup_worker", interval, logger, w.work)
	metrics.WorkerStartTime.WithLabelValues("cleanup_worker").SetToCurrentTime()
	return w
}

func (w *CleanupWorker) work(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.CleanupCycleDuration.Observe(time.Since(start).Seconds()) }()

	tasks, err := w.taskService.DeletableTasks(ctx, w.cleanupPolicy)
	if err != nil {
		w.logger.Error("list deletable tasks", "error", err)
		return
	}
	for _, task := range tasks {
		w.deleteTask(ctx, task.ID)
	}
}

func (w *CleanupWorker) deleteTask(ctx context.Context, taskID string) {
	w.logger.Debug("deleting task", "task_id", taskID)
	err := w.taskService.DeleteTask(ctx, taskID)
	switch {
	case err == nil:
		metrics.TasksDeletedTotal.Inc()
		w.logger.Info("deleted task", "task_id", taskID)
	case errors.Is(err, domain.ErrTaskNotFound):
		w.logger.Debug("failed to delete task", "task_id", taskID, "error", err)
	default:
		w.logger.Error("failed to delete task", "task_id", taskID, "error", err)
	}
}
