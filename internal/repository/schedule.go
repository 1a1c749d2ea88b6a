package repository

import (
	"context"

	"github.com/nilcoder/taskq/internal/domain"
)

type ScheduleRepository interface {
	// Create, DeleteByID, and Update all take a synchronous flag that
	// selects the sync- or async-write pool: user-initiated mutations must
	// survive a crash, worker-driven ones can be replayed from polling.
	Create(ctx context.Context, schedule domain.Schedule, synchronous bool) error
	GetByID(ctx context.Context, id string) (domain.Schedule, error)
	ListBySpec(ctx context.Context, spec domain.ScheduleSpec) ([]domain.Schedule, error)
	DeleteByID(ctx context.Context, id string, synchronous bool) error
	Update(ctx context.Context, schedule domain.Schedule, synchronous bool) error
}
