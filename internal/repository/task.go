// Package repository declares the narrow interfaces the service layer
// depends on. Depending on an interface rather than the concrete SQLite
// implementation means a second backend (an in-memory fake, used by the
// tests throughout this module) slots in unchanged.
package repository

import (
	"context"

	"github.com/nilcoder/taskq/internal/domain"
)

type TaskRepository interface {
	// Create, DeleteByID, and Update all take a synchronous flag that
	// selects the sync- or async-write pool: user-initiated mutations must
	// survive a crash, worker-driven ones can be replayed from polling.
	Create(ctx context.Context, task domain.Task, synchronous bool) error
	GetByID(ctx context.Context, id string) (domain.Task, error)
	ListBySpec(ctx context.Context, spec domain.TaskSpec) ([]domain.Task, error)
	DeleteByID(ctx context.Context, id string, synchronous bool) error
	Update(ctx context.Context, task domain.Task, synchronous bool) error
}
