package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nilcoder/taskq/internal/domain"
	"github.com/nilcoder/taskq/internal/storage"
)

func openTestDB(t *testing.T) *storage.Databases {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskq.db")
	db, err := storage.Open(context.Background(), storage.PoolConfig{Path: path, ReadCapacity: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTaskRepositoryCreateGetUpdateDelete(t *testing.T) {
	db := openTestDB(t)
	repo := storage.NewTaskRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	task := domain.NewTask(now, "t1", map[string]any{"x": float64(1)}, 0, domain.RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxAttempts: 3}, nil)

	if err := repo.Create(ctx, task, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, task, true); !errors.Is(err, domain.ErrTaskAlreadyExists) {
		t.Fatalf("expected ErrTaskAlreadyExists on duplicate insert, got %v", err)
	}

	got, err := repo.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != task.ID || got.State != domain.TaskActive {
		t.Fatalf("round-tripped task mismatch: %+v", got)
	}
	if got.RetryPolicy.MaxAttempts != 3 {
		t.Fatalf("retry policy did not round-trip: %+v", got.RetryPolicy)
	}

	if err := got.BeginExecution(now); err != nil {
		t.Fatalf("BeginExecution: %v", err)
	}
	got.EndExecution(now.Add(time.Second), nil)
	if err := repo.Update(ctx, got, false); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// A stale version must be rejected.
	if err := repo.Update(ctx, got, false); !errors.Is(err, domain.ErrTaskUpdatedConcurrently) {
		t.Fatalf("expected ErrTaskUpdatedConcurrently on stale version, got %v", err)
	}

	if err := repo.DeleteByID(ctx, "t1", true); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	if err := repo.DeleteByID(ctx, "t1", true); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound on repeated delete, got %v", err)
	}
}

func TestTaskRepositoryListBySpecFiltersByState(t *testing.T) {
	db := openTestDB(t)
	repo := storage.NewTaskRepository(db)
	ctx := context.Background()
	now := time.Now()

	active := domain.NewTask(now, "active", nil, 0, domain.RetryPolicy{MaxAttempts: 3}, nil)
	succeeded := domain.NewTask(now, "succeeded", nil, 0, domain.RetryPolicy{MaxAttempts: 3}, nil)
	succeeded.State = domain.TaskSucceeded

	if err := repo.Create(ctx, active, true); err != nil {
		t.Fatalf("Create active: %v", err)
	}
	if err := repo.Create(ctx, succeeded, true); err != nil {
		t.Fatalf("Create succeeded: %v", err)
	}

	state := domain.TaskActive
	got, err := repo.ListBySpec(ctx, domain.TaskSpec{State: &state})
	if err != nil {
		t.Fatalf("ListBySpec: %v", err)
	}
	if len(got) != 1 || got[0].ID != "active" {
		t.Fatalf("expected only the active task, got %+v", got)
	}
}

func TestScheduleRepositoryCreateGetUpdateDelete(t *testing.T) {
	db := openTestDB(t)
	repo := storage.NewScheduleRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	schedule := domain.NewSchedule(now, "s1", 0, time.Minute, domain.RetryPolicy{MaxAttempts: 3}, true, map[string]any{"y": float64(2)}, domain.RetryPolicy{MaxAttempts: 3})

	if err := repo.Create(ctx, schedule, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, schedule, true); !errors.Is(err, domain.ErrScheduleAlreadyExists) {
		t.Fatalf("expected ErrScheduleAlreadyExists, got %v", err)
	}

	got, err := repo.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Interval != time.Minute || !got.Enabled {
		t.Fatalf("round-tripped schedule mismatch: %+v", got)
	}

	if err := got.BeginFiring(now); err != nil {
		t.Fatalf("BeginFiring: %v", err)
	}
	if err := got.EndFiring(now, nil); err != nil {
		t.Fatalf("EndFiring: %v", err)
	}
	if err := repo.Update(ctx, got, false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := repo.Update(ctx, got, false); !errors.Is(err, domain.ErrScheduleUpdatedConcurrently) {
		t.Fatalf("expected ErrScheduleUpdatedConcurrently on stale version, got %v", err)
	}

	if err := repo.DeleteByID(ctx, "s1", true); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskq.db")
	db, err := storage.Open(context.Background(), storage.PoolConfig{Path: path, ReadCapacity: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.Close()

	db2, err := storage.Open(context.Background(), storage.PoolConfig{Path: path, ReadCapacity: 2})
	if err != nil {
		t.Fatalf("re-Open on an already-migrated database should succeed, got: %v", err)
	}
	db2.Close()
}
