package worker

import (
	"context"
	"testing"
	"time"

	"github.com/nilcoder/taskq/internal/domain"
	"github.com/nilcoder/taskq/internal/service"
)

func TestCleanupWorkerDeletesDeletableTasksAndRerunsCleanly(t *testing.T) {
	now := time.Now()
	oldSucceeded := domain.NewTask(now.Add(-2*time.Hour), "succeeded-old", nil, 0, domain.RetryPolicy{MaxAttempts: 3}, nil)
	oldSucceeded.State = domain.TaskSucceeded
	endedAt := now.Add(-2 * time.Hour)
	oldSucceeded.Executions = []domain.TaskExecution{{BegunAt: endedAt, EndedAt: &endedAt}}

	repo := newFakeTaskRepo(oldSucceeded)
	taskSvc := service.NewTaskService(repo, nil)
	taskSvc.SetNowForTest(func() time.Time { return now })

	w := NewCleanupWorker(time.Hour, taskSvc, domain.CleanupPolicy{
		DeleteSucceededAfter: time.Hour,
		DeleteFailedAfter:    24 * time.Hour,
	}, discardLogger())

	w.work(context.Background())

	if _, err := repo.GetByID(context.Background(), "succeeded-old"); err == nil {
		t.Fatal("expected the old succeeded task to be deleted")
	}

	// A second pass finds nothing and must not error even though the
	// task it would have targeted is already gone.
	w.work(context.Background())
}
