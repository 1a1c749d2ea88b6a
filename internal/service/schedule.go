package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nilcoder/taskq/internal/domain"
	"github.com/nilcoder/taskq/internal/repository"
)

type ScheduleService struct {
	repo        repository.ScheduleRepository
	taskService *TaskService
	now         func() time.Time
}

func NewScheduleService(repo repository.ScheduleRepository, taskService *TaskService) *ScheduleService {
	return &ScheduleService{repo: repo, taskService: taskService, now: time.Now}
}

// SetNowForTest overrides the service's clock. Tests use it to assert
// exact ready_at/retry arithmetic without sleeping.
func (s *ScheduleService) SetNowForTest(now func() time.Time) {
	s.now = now
}

func (s *ScheduleService) CreateSchedule(
	ctx context.Context,
	id string,
	delay time.Duration,
	interval time.Duration,
	retryPolicy domain.RetryPolicy,
	enabled bool,
	taskArgs any,
	taskRetryPolicy domain.RetryPolicy,
) (domain.Schedule, error) {
	schedule := domain.NewSchedule(s.now(), id, delay, interval, retryPolicy, enabled, taskArgs, taskRetryPolicy)
	if err := s.repo.Create(ctx, schedule, true); err != nil {
		return domain.Schedule{}, err
	}
	return schedule, nil
}

func (s *ScheduleService) Schedule(ctx context.Context, id string) (domain.Schedule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ScheduleService) Schedules(ctx context.Context, spec domain.ScheduleSpec) ([]domain.Schedule, error) {
	return s.repo.ListBySpec(ctx, spec)
}

func (s *ScheduleService) DeleteSchedule(ctx context.Context, id string) error {
	return s.repo.DeleteByID(ctx, id, true)
}

func (s *ScheduleService) FireableSchedules(ctx context.Context) ([]domain.Schedule, error) {
	now := s.now()
	enabled := true
	return s.repo.ListBySpec(ctx, domain.ScheduleSpec{Enabled: &enabled, ReadyAsOf: &now})
}

// FireSchedule produces (or re-produces, idempotently) the schedule's
// current task, then advances the schedule. Producing the task is
// tolerant of a concurrent or repeated fire landing on the same
// deterministic id: ErrTaskAlreadyExists is swallowed rather than
// recorded as a firing failure.
func (s *ScheduleService) FireSchedule(ctx context.Context, scheduleID string) (domain.Schedule, error) {
	schedule, err := s.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return domain.Schedule{}, err
	}
	if err := schedule.BeginFiring(s.now()); err != nil {
		return domain.Schedule{}, err
	}

	var firingErr *string
	scheduleIDCopy := schedule.ID
	_, createErr := s.taskService.CreateTask(
		ctx,
		schedule.GenerateTaskID(),
		schedule.TaskArgs,
		0,
		schedule.TaskRetryPolicy,
		&scheduleIDCopy,
	)
	if createErr != nil && !errors.Is(createErr, domain.ErrTaskAlreadyExists) {
		msg := createErr.Error()
		firingErr = &msg
	}

	if err := schedule.EndFiring(s.now(), firingErr); err != nil {
		return domain.Schedule{}, fmt.Errorf("end firing: %w", err)
	}

	if err := s.repo.Update(ctx, schedule, false); err != nil {
		return domain.Schedule{}, err
	}
	return schedule, nil
}
