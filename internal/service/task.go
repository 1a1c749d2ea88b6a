// Package service is the orchestration layer: it sequences domain state
// transitions with repository calls under one clock.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nilcoder/taskq/internal/domain"
	"github.com/nilcoder/taskq/internal/repository"
)

// TaskHandler runs a task's payload. A nil handler means the queue only
// stores and schedules tasks; execute_task then fails with
// ErrTaskHandlerNotFound, matching a producer-only deployment.
type TaskHandler func(ctx context.Context, task *domain.Task) error

type TaskService struct {
	repo    repository.TaskRepository
	handler TaskHandler
	now     func() time.Time
}

func NewTaskService(repo repository.TaskRepository, handler TaskHandler) *TaskService {
	return &TaskService{repo: repo, handler: handler, now: time.Now}
}

// SetNowForTest overrides the service's clock. Tests use it to assert
// exact ready_at/retry arithmetic without sleeping.
func (s *TaskService) SetNowForTest(now func() time.Time) {
	s.now = now
}

func (s *TaskService) CreateTask(ctx context.Context, id string, args any, delay time.Duration, retryPolicy domain.RetryPolicy, scheduleID *string) (domain.Task, error) {
	task := domain.NewTask(s.now(), id, args, delay, retryPolicy, scheduleID)
	if err := s.repo.Create(ctx, task, true); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (s *TaskService) Task(ctx context.Context, id string) (domain.Task, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *TaskService) Tasks(ctx context.Context, spec domain.TaskSpec) ([]domain.Task, error) {
	return s.repo.ListBySpec(ctx, spec)
}

func (s *TaskService) DeletableTasks(ctx context.Context, policy domain.CleanupPolicy) ([]domain.Task, error) {
	now := s.now()
	failedDeadline := policy.FailedDeadline(now)
	failed, err := s.repo.ListBySpec(ctx, domain.TaskSpec{
		State:                    taskStatePtr(domain.TaskFailed),
		LastExecutionEndedBefore: &failedDeadline,
	})
	if err != nil {
		return nil, err
	}

	succeededDeadline := policy.SucceededDeadline(now)
	succeeded, err := s.repo.ListBySpec(ctx, domain.TaskSpec{
		State:                    taskStatePtr(domain.TaskSucceeded),
		LastExecutionEndedBefore: &succeededDeadline,
	})
	if err != nil {
		return nil, err
	}

	return append(failed, succeeded...), nil
}

func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	return s.repo.DeleteByID(ctx, id, true)
}

func (s *TaskService) ExecutableTasks(ctx context.Context) ([]domain.Task, error) {
	now := s.now()
	return s.repo.ListBySpec(ctx, domain.TaskSpec{State: taskStatePtr(domain.TaskActive), ReadyAsOf: &now})
}

// ExecuteTask runs the registered handler for task_id, records the
// execution's outcome, and writes the updated task back with a CAS
// update. A nil handler result counts as success; any returned error is
// recorded on the task and feeds retry arithmetic.
func (s *TaskService) ExecuteTask(ctx context.Context, taskID string) (domain.Task, error) {
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if s.handler == nil {
		return domain.Task{}, domain.ErrTaskHandlerNotFound
	}
	if err := task.BeginExecution(s.now()); err != nil {
		return domain.Task{}, err
	}

	var handlerErr *string
	if err := s.runHandler(ctx, &task); err != nil {
		msg := err.Error()
		handlerErr = &msg
	}
	task.EndExecution(s.now(), handlerErr)

	if err := s.repo.Update(ctx, task, false); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// runHandler recovers a panicking handler the way the async worker pool
// recovers a panicking goroutine: a broken handler must not take the
// execution worker down with it.
func (s *TaskService) runHandler(ctx context.Context, task *domain.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
		}
	}()
	return s.handler(ctx, task)
}

// ReactivateTask moves a terminal task back to ACTIVE, ready after delay.
// It is a synchronous (fsync'd) write, the same durability class as
// CreateTask: a caller-initiated command must survive a crash, unlike a
// worker's routine execution update.
func (s *TaskService) ReactivateTask(ctx context.Context, taskID string, delay time.Duration) (domain.Task, error) {
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	task.State = domain.TaskActive
	task.ReadyAt = s.now().Add(delay)
	if err := s.repo.Update(ctx, task, true); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func taskStatePtr(s domain.TaskState) *domain.TaskState {
	return &s
}
