package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/nilcoder/taskq/internal/domain"
)

const (
	sqlCreateTask = `
		INSERT INTO tasks (
			id, version, created_at, args, state, ready_at, retry_policy,
			executions, last_execution_ended_at, schedule_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlGetTaskByID = `
		SELECT id, version, created_at, args, state, ready_at, retry_policy,
			executions, schedule_id
		FROM tasks
		WHERE id = ?`

	sqlDeleteTaskByID = `DELETE FROM tasks WHERE id = ?`

	sqlUpdateTaskByID = `
		UPDATE tasks
		SET
			version = version + 1,
			created_at = ?,
			args = ?,
			state = ?,
			ready_at = ?,
			retry_policy = ?,
			executions = ?,
			last_execution_ended_at = ?,
			schedule_id = ?
		WHERE id = ? AND version = ?`
)

// TaskRepository is the SQLite-backed implementation of
// repository.TaskRepository.
type TaskRepository struct {
	db *Databases
}

func NewTaskRepository(db *Databases) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task domain.Task, synchronous bool) error {
	args, err := json.Marshal(task.Args)
	if err != nil {
		return fmt.Errorf("marshal task args: %w", err)
	}
	retryPolicy, err := json.Marshal(dumpRetryPolicy(task.RetryPolicy))
	if err != nil {
		return fmt.Errorf("marshal retry policy: %w", err)
	}
	executions, err := dumpExecutions(task.Executions)
	if err != nil {
		return fmt.Errorf("marshal executions: %w", err)
	}

	pool := r.db.AsyncWrite
	if synchronous {
		pool = r.db.SyncWrite
	}

	return WithTransaction(ctx, pool, false, func(ctx context.Context, tx *Transaction) error {
		_, err := tx.ExecContext(ctx, sqlCreateTask,
			task.ID, task.Version, dumpTimestamp(task.CreatedAt), string(args),
			string(task.State), dumpTimestamp(task.ReadyAt), string(retryPolicy),
			string(executions), lastExecutionEndedAt(task), task.ScheduleID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrTaskAlreadyExists
			}
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	})
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (domain.Task, error) {
	var task domain.Task
	err := WithTransaction(ctx, r.db.Read, true, func(ctx context.Context, tx *Transaction) error {
		row := tx.QueryRowContext(ctx, sqlGetTaskByID, id)
		t, err := scanTask(row)
		if err != nil {
			return err
		}
		task = t
		return nil
	})
	return task, err
}

func (r *TaskRepository) ListBySpec(ctx context.Context, spec domain.TaskSpec) ([]domain.Task, error) {
	var where []string
	var args []any

	if spec.State != nil {
		where = append(where, "state = ?")
		args = append(args, string(*spec.State))
	}
	if spec.ReadyAsOf != nil {
		where = append(where, "ready_at <= ?")
		args = append(args, dumpTimestamp(*spec.ReadyAsOf))
	}
	if spec.LastExecutionEndedBefore != nil {
		where = append(where, "last_execution_ended_at <= ?")
		args = append(args, dumpTimestamp(*spec.LastExecutionEndedBefore))
	}

	query := `SELECT id, version, created_at, args, state, ready_at, retry_policy, executions, schedule_id FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ready_at ASC"

	var tasks []domain.Task
	err := WithTransaction(ctx, r.db.Read, true, func(ctx context.Context, tx *Transaction) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		return rows.Err()
	})
	return tasks, err
}

func (r *TaskRepository) DeleteByID(ctx context.Context, id string, synchronous bool) error {
	pool := r.db.AsyncWrite
	if synchronous {
		pool = r.db.SyncWrite
	}

	return WithTransaction(ctx, pool, false, func(ctx context.Context, tx *Transaction) error {
		result, err := tx.ExecContext(ctx, sqlDeleteTaskByID, id)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrTaskNotFound
		}
		return nil
	})
}

func (r *TaskRepository) Update(ctx context.Context, task domain.Task, synchronous bool) error {
	argsJSON, err := json.Marshal(task.Args)
	if err != nil {
		return fmt.Errorf("marshal task args: %w", err)
	}
	retryPolicy, err := json.Marshal(dumpRetryPolicy(task.RetryPolicy))
	if err != nil {
		return fmt.Errorf("marshal retry policy: %w", err)
	}
	executions, err := dumpExecutions(task.Executions)
	if err != nil {
		return fmt.Errorf("marshal executions: %w", err)
	}

	pool := r.db.AsyncWrite
	if synchronous {
		pool = r.db.SyncWrite
	}

	return WithTransaction(ctx, pool, false, func(ctx context.Context, tx *Transaction) error {
		result, err := tx.ExecContext(ctx, sqlUpdateTaskByID,
			dumpTimestamp(task.CreatedAt), string(argsJSON), string(task.State),
			dumpTimestamp(task.ReadyAt), string(retryPolicy), string(executions),
			lastExecutionEndedAt(task), task.ScheduleID, task.ID, task.Version,
		)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrTaskUpdatedConcurrently
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		id, createdAt, argsJSON, state, readyAt, retryPolicyJSON, executionsJSON string
		version                                                                  int64
		scheduleID                                                               sql.NullString
	)
	err := row.Scan(&id, &version, &createdAt, &argsJSON, &state, &readyAt, &retryPolicyJSON, &executionsJSON, &scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, domain.ErrTaskNotFound
		}
		return domain.Task{}, fmt.Errorf("scan task: %w", err)
	}

	task := domain.Task{ID: id, Version: version, State: domain.TaskState(state)}

	if task.CreatedAt, err = loadTimestamp(createdAt); err != nil {
		return domain.Task{}, fmt.Errorf("parse created_at: %w", err)
	}
	if task.ReadyAt, err = loadTimestamp(readyAt); err != nil {
		return domain.Task{}, fmt.Errorf("parse ready_at: %w", err)
	}
	if err := json.Unmarshal([]byte(argsJSON), &task.Args); err != nil {
		return domain.Task{}, fmt.Errorf("unmarshal args: %w", err)
	}

	var retryPolicyDTO retryPolicyDTO
	if err := json.Unmarshal([]byte(retryPolicyJSON), &retryPolicyDTO); err != nil {
		return domain.Task{}, fmt.Errorf("unmarshal retry policy: %w", err)
	}
	task.RetryPolicy = loadRetryPolicy(retryPolicyDTO)

	if task.Executions, err = loadExecutions([]byte(executionsJSON)); err != nil {
		return domain.Task{}, fmt.Errorf("unmarshal executions: %w", err)
	}

	if scheduleID.Valid {
		task.ScheduleID = &scheduleID.String
	}

	return task, nil
}

// isUniqueViolation reports whether err is a SQLite primary-key or unique
// constraint violation, the mattn/go-sqlite3 equivalent of Postgres' 23505.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
