package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nilcoder/taskq/internal/domain"
	"github.com/nilcoder/taskq/internal/execid"
	"github.com/nilcoder/taskq/internal/metrics"
	"github.com/nilcoder/taskq/internal/service"
)

// ExecutionWorker drives ready tasks through their handler. It bounds
// concurrency with a fixed-size goroutine pool and tracks in-flight task
// ids so the same task is never dispatched twice while one attempt is
// still running.
type ExecutionWorker struct {
	*base

	taskService *service.TaskService
	sem         chan struct{}
	wg          sync.WaitGroup

	mu        sync.Mutex
	executing map[string]struct{}
}

func NewExecutionWorker(interval time.Duration, taskService *service.TaskService, threads int, logger *slog.Logger) *ExecutionWorker {
	w := &ExecutionWorker{
		taskService: taskService,
		sem:         make(chan struct{}, threads),
		executing:   make(map[string]struct{}),
	}
	w.base = newBase("execution_worker", interval, logger, w.work)
	metrics.WorkerStartTime.WithLabelValues("execution_worker").SetToCurrentTime()
	return w
}

// work repeatedly lists executable tasks and submits them until a whole
// pass submits nothing new, so a backlog drains within one tick instead
// of trickling out one page per interval.
func (w *ExecutionWorker) work(ctx context.Context) {
	for {
		tasks, err := w.taskService.ExecutableTasks(ctx)
		if err != nil {
			w.logger.Error("list executable tasks", "error", err)
			return
		}

		submitted := 0
		for _, task := range tasks {
			if w.submit(ctx, task) {
				submitted++
			}
		}
		if submitted == 0 {
			return
		}
	}
}

func (w *ExecutionWorker) submit(ctx context.Context, task domain.Task) bool {
	w.mu.Lock()
	if _, inFlight := w.executing[task.ID]; inFlight {
		w.mu.Unlock()
		return false
	}
	w.executing[task.ID] = struct{}{}
	w.mu.Unlock()

	release := func() {
		w.mu.Lock()
		delete(w.executing, task.ID)
		w.mu.Unlock()
	}

	if ctx.Err() != nil {
		release()
		return false
	}
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		release()
		return false
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		defer release()
		w.executeTask(ctx, task.ID)
	}()
	return true
}

// Stop first stops the polling loop (so no further task is submitted),
// then waits for currently-running handlers to finish. Without this override a
// caller could observe Stop returning while a handler goroutine is
// still executing against a database the facade is about to close.
func (w *ExecutionWorker) Stop() {
	w.base.Stop()
	w.wg.Wait()
}

func (w *ExecutionWorker) executeTask(ctx context.Context, taskID string) {
	ctx = execid.Into(ctx, execid.New())

	metrics.TasksInFlight.Inc()
	defer metrics.TasksInFlight.Dec()

	w.logger.DebugContext(ctx, "executing task", "task_id", taskID)
	task, err := w.taskService.ExecuteTask(ctx, taskID)
	switch {
	case err == nil:
		last := task.LastExecution()
		outcome := "success"
		if last.Error != nil {
			outcome = "retry"
			if task.State == domain.TaskFailed {
				outcome = "failed"
			}
		}
		if last.Duration() != nil {
			metrics.TaskExecutionDuration.WithLabelValues(outcome).Observe(last.Duration().Seconds())
		}
		metrics.TasksExecutedTotal.WithLabelValues(outcome).Inc()
		w.logger.InfoContext(ctx, "task executed", "task_id", task.ID, "duration", last.Duration(), "error", last.Error)
	case errors.Is(err, domain.ErrTaskHandlerNotFound):
		w.logger.WarnContext(ctx, "failed to execute task", "task_id", taskID, "error", err)
	case errors.Is(err, domain.ErrTaskNotActive),
		errors.Is(err, domain.ErrTaskNotReady),
		errors.Is(err, domain.ErrTaskUpdatedConcurrently),
		errors.Is(err, domain.ErrTaskNotFound):
		w.logger.DebugContext(ctx, "failed to execute task", "task_id", taskID, "error", err)
	default:
		metrics.TasksExecutedTotal.WithLabelValues("error").Inc()
		w.logger.ErrorContext(ctx, "failed to execute task", "task_id", taskID, "error", err)
	}
}
