// Package taskq is a lightweight, single-node, persistent task queue:
// at-least-once delivery, exponential-backoff retries, fixed-interval
// recurring schedules, and automatic cleanup of terminal tasks. Everything
// lives behind the Queue facade; callers never touch the internal
// packages.
package taskq

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/nilcoder/taskq/internal/domain"
	"github.com/nilcoder/taskq/internal/service"
	"github.com/nilcoder/taskq/internal/storage"
	"github.com/nilcoder/taskq/internal/worker"
)

// TaskHandler runs a task's payload; see service.TaskHandler.
type TaskHandler = service.TaskHandler

// RetryPolicy, CleanupPolicy, Task, Schedule and the rest of the domain
// vocabulary are re-exported so callers never need to import
// internal/domain directly.
type (
	RetryPolicy    = domain.RetryPolicy
	CleanupPolicy  = domain.CleanupPolicy
	Task           = domain.Task
	TaskState      = domain.TaskState
	TaskExecution  = domain.TaskExecution
	Schedule       = domain.Schedule
	ScheduleFiring = domain.ScheduleFiring
)

const (
	TaskActive    = domain.TaskActive
	TaskSucceeded = domain.TaskSucceeded
	TaskFailed    = domain.TaskFailed
)

var (
	DefaultRetryPolicy = RetryPolicy{
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      durationPtr(24 * time.Hour),
		MaxAttempts:   20,
	}

	DefaultCleanupPolicy = CleanupPolicy{
		DeleteSucceededAfter: 24 * time.Hour,
		DeleteFailedAfter:    7 * 24 * time.Hour,
	}
)

func durationPtr(d time.Duration) *time.Duration { return &d }

// Options configures Open. Zero values get sensible defaults: one
// execution/schedule tick per second, one goroutine per CPU, minutely
// cleanup sweeps.
type Options struct {
	TaskHandler             TaskHandler
	DefaultRetryPolicy      RetryPolicy
	ExecutionWorkerInterval time.Duration
	ExecutionWorkerThreads  int
	CleanupPolicy           CleanupPolicy
	CleanupWorkerInterval   time.Duration
	ScheduleWorkerInterval  time.Duration
	Logger                  *slog.Logger
	MetricsRegisterer       MetricsRegisterer
}

func (o *Options) setDefaults() {
	if o.DefaultRetryPolicy == (RetryPolicy{}) {
		o.DefaultRetryPolicy = DefaultRetryPolicy
	}
	if o.ExecutionWorkerInterval == 0 {
		o.ExecutionWorkerInterval = time.Second
	}
	if o.ExecutionWorkerThreads == 0 {
		o.ExecutionWorkerThreads = max(runtime.NumCPU(), 1)
	}
	if o.CleanupPolicy == (CleanupPolicy{}) {
		o.CleanupPolicy = DefaultCleanupPolicy
	}
	if o.CleanupWorkerInterval == 0 {
		o.CleanupWorkerInterval = time.Minute
	}
	if o.ScheduleWorkerInterval == 0 {
		o.ScheduleWorkerInterval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
}

// Queue is the opened facade: the two services, the three background
// workers, and the database connections backing them.
type Queue struct {
	databasePath string
	db           *storage.Databases

	defaultRetryPolicy RetryPolicy
	taskService        *service.TaskService
	scheduleService    *service.ScheduleService

	executionWorker *worker.ExecutionWorker
	cleanupWorker   *worker.CleanupWorker
	scheduleWorker  *worker.ScheduleWorker

	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite file at databasePath,
// migrates it, and wires the services and workers described by opts. The
// workers are not started; call Start.
func Open(ctx context.Context, databasePath string, opts Options) (*Queue, error) {
	opts.setDefaults()

	db, err := storage.Open(ctx, storage.PoolConfig{
		Path:         databasePath,
		ReadCapacity: storage.CalculateReadPoolCapacity(opts.ExecutionWorkerThreads),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	taskRepo := storage.NewTaskRepository(db)
	taskService := service.NewTaskService(taskRepo, opts.TaskHandler)

	scheduleRepo := storage.NewScheduleRepository(db)
	scheduleService := service.NewScheduleService(scheduleRepo, taskService)

	registerMetrics(opts.MetricsRegisterer)

	q := &Queue{
		databasePath:       databasePath,
		db:                 db,
		defaultRetryPolicy: opts.DefaultRetryPolicy,
		taskService:        taskService,
		scheduleService:    scheduleService,
		logger:             opts.Logger,

		executionWorker: worker.NewExecutionWorker(opts.ExecutionWorkerInterval, taskService, opts.ExecutionWorkerThreads, opts.Logger),
		cleanupWorker:   worker.NewCleanupWorker(opts.CleanupWorkerInterval, taskService, opts.CleanupPolicy, opts.Logger),
		scheduleWorker:  worker.NewScheduleWorker(opts.ScheduleWorkerInterval, scheduleService, opts.Logger),
	}
	return q, nil
}

// Close releases the database connections. Call Stop first if the
// workers are running.
func (q *Queue) Close() error {
	return q.db.Close()
}

// ReadPool, AsyncWritePool and SyncWritePool expose the queue's three
// connection pools so a host process can wire them into its own health
// checks.
func (q *Queue) ReadPool() *storage.Pool       { return q.db.Read }
func (q *Queue) AsyncWritePool() *storage.Pool { return q.db.AsyncWrite }
func (q *Queue) SyncWritePool() *storage.Pool  { return q.db.SyncWrite }

// Start launches the background workers. The schedule worker starts
// last so no new task is enqueued before execution and cleanup are
// already polling for it.
func (q *Queue) Start() {
	q.executionWorker.Start()
	q.cleanupWorker.Start()
	q.scheduleWorker.Start()
}

// Stop drains and stops the background workers in dependency order:
// cleanup stops first since it has no in-flight work worth waiting on,
// execution stops next and blocks until its handlers finish, and
// schedule stops last so it cannot enqueue new work while execution is
// still draining.
func (q *Queue) Stop() {
	q.cleanupWorker.Stop()
	q.executionWorker.Stop()
	q.scheduleWorker.Stop()
}

// CreateTask enqueues a new task. args must be JSON-marshalable. A zero
// retryPolicy falls back to the queue's default. id lets a caller make
// task creation idempotent across retries of its own; leave it empty to
// generate one.
func (q *Queue) CreateTask(ctx context.Context, args any, delay time.Duration, retryPolicy *RetryPolicy, id string) (Task, error) {
	policy := q.defaultRetryPolicy
	if retryPolicy != nil {
		policy = *retryPolicy
	}
	if id == "" {
		id = newID()
	}
	q.logger.Debug("creating task", "task_id", id, "delay", delay)
	task, err := q.taskService.CreateTask(ctx, id, args, delay, policy, nil)
	if err != nil {
		return Task{}, err
	}
	q.logger.Info("task created", "task_id", task.ID)
	return task, nil
}

func (q *Queue) Task(ctx context.Context, id string) (Task, error) {
	return q.taskService.Task(ctx, id)
}

func (q *Queue) DeleteTask(ctx context.Context, id string) error {
	return q.taskService.DeleteTask(ctx, id)
}

// Tasks lists tasks, optionally filtered by state.
func (q *Queue) Tasks(ctx context.Context, state *TaskState) ([]Task, error) {
	return q.taskService.Tasks(ctx, domain.TaskSpec{State: state})
}

// ReactivateTask moves a terminal (SUCCEEDED or FAILED) task back to
// ACTIVE, ready after delay.
func (q *Queue) ReactivateTask(ctx context.Context, id string, delay time.Duration) (Task, error) {
	return q.taskService.ReactivateTask(ctx, id, delay)
}

// CreateSchedule creates a recurring task generator that fires every
// interval. Zero retryPolicy/taskRetryPolicy fall back to the queue's
// default.
func (q *Queue) CreateSchedule(
	ctx context.Context,
	taskArgs any,
	interval time.Duration,
	enabled bool,
	delay time.Duration,
	retryPolicy *RetryPolicy,
	taskRetryPolicy *RetryPolicy,
	id string,
) (Schedule, error) {
	policy := q.defaultRetryPolicy
	if retryPolicy != nil {
		policy = *retryPolicy
	}
	taskPolicy := q.defaultRetryPolicy
	if taskRetryPolicy != nil {
		taskPolicy = *taskRetryPolicy
	}
	if id == "" {
		id = newID()
	}
	q.logger.Debug("creating schedule", "schedule_id", id, "interval", interval)
	schedule, err := q.scheduleService.CreateSchedule(ctx, id, delay, interval, policy, enabled, taskArgs, taskPolicy)
	if err != nil {
		return Schedule{}, err
	}
	q.logger.Info("schedule created", "schedule_id", schedule.ID)
	return schedule, nil
}

func (q *Queue) Schedule(ctx context.Context, id string) (Schedule, error) {
	return q.scheduleService.Schedule(ctx, id)
}

// Schedules lists schedules, optionally filtered by enabled state.
func (q *Queue) Schedules(ctx context.Context, enabled *bool) ([]Schedule, error) {
	return q.scheduleService.Schedules(ctx, domain.ScheduleSpec{Enabled: enabled})
}

func (q *Queue) DeleteSchedule(ctx context.Context, id string) error {
	return q.scheduleService.DeleteSchedule(ctx, id)
}
