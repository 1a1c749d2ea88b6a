package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nilcoder/taskq/internal/domain"
	"github.com/nilcoder/taskq/internal/service"
)

type fakeScheduleRepo struct {
	mu        sync.Mutex
	schedules map[string]domain.Schedule
}

func (r *fakeScheduleRepo) Create(_ context.Context, s domain.Schedule, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.ID] = s
	return nil
}

func (r *fakeScheduleRepo) GetByID(_ context.Context, id string) (domain.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return domain.Schedule{}, domain.ErrScheduleNotFound
	}
	return s, nil
}

func (r *fakeScheduleRepo) ListBySpec(_ context.Context, spec domain.ScheduleSpec) ([]domain.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Schedule
	for _, s := range r.schedules {
		if spec.Enabled != nil && s.Enabled != *spec.Enabled {
			continue
		}
		if spec.ReadyAsOf != nil && s.ReadyAt.After(*spec.ReadyAsOf) {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

func (r *fakeScheduleRepo) DeleteByID(_ context.Context, id string, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schedules, id)
	return nil
}

func (r *fakeScheduleRepo) Update(_ context.Context, s domain.Schedule, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.ID] = s
	return nil
}

func TestScheduleWorkerFiresDueSchedulesUntilDry(t *testing.T) {
	now := time.Now()
	due := domain.NewSchedule(now.Add(-time.Minute), "s1", 0, time.Hour, domain.RetryPolicy{MaxAttempts: 3}, true, nil, domain.RetryPolicy{MaxAttempts: 3})

	scheduleRepo := &fakeScheduleRepo{schedules: map[string]domain.Schedule{"s1": due}}
	taskRepo := newFakeTaskRepo()

	taskSvc := service.NewTaskService(taskRepo, nil)
	taskSvc.SetNowForTest(func() time.Time { return now })
	scheduleSvc := service.NewScheduleService(scheduleRepo, taskSvc)
	scheduleSvc.SetNowForTest(func() time.Time { return now })

	w := NewScheduleWorker(time.Hour, scheduleSvc, discardLogger())
	w.work(context.Background())

	fired, err := scheduleRepo.GetByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fired.TaskSequenceNumber != 2 {
		t.Fatalf("expected schedule to have fired once and advanced, got sequence %d", fired.TaskSequenceNumber)
	}
	if len(taskRepo.tasks) != 1 {
		t.Fatalf("expected one produced task, got %d", len(taskRepo.tasks))
	}
}
