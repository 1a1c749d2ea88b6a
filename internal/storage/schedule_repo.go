package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nilcoder/taskq/internal/domain"
)

const (
	sqlCreateSchedule = `
		INSERT INTO schedules (
			id, version, created_at, ready_at, origin, interval, retry_policy,
			enabled, task_args, task_retry_policy, task_sequence_number, firings
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlGetScheduleByID = `
		SELECT id, version, created_at, ready_at, origin, interval, retry_policy,
			enabled, task_args, task_retry_policy, task_sequence_number, firings
		FROM schedules
		WHERE id = ?`

	sqlDeleteScheduleByID = `DELETE FROM schedules WHERE id = ?`

	sqlUpdateScheduleByID = `
		UPDATE schedules
		SET
			version = version + 1,
			created_at = ?,
			ready_at = ?,
			origin = ?,
			interval = ?,
			retry_policy = ?,
			enabled = ?,
			task_args = ?,
			task_retry_policy = ?,
			task_sequence_number = ?,
			firings = ?
		WHERE id = ? AND version = ?`
)

// ScheduleRepository is the SQLite-backed implementation of
// repository.ScheduleRepository.
type ScheduleRepository struct {
	db *Databases
}

func NewScheduleRepository(db *Databases) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) Create(ctx context.Context, schedule domain.Schedule, synchronous bool) error {
	taskArgs, err := json.Marshal(schedule.TaskArgs)
	if err != nil {
		return fmt.Errorf("marshal task args: %w", err)
	}
	retryPolicy, err := json.Marshal(dumpRetryPolicy(schedule.RetryPolicy))
	if err != nil {
		return fmt.Errorf("marshal retry policy: %w", err)
	}
	taskRetryPolicy, err := json.Marshal(dumpRetryPolicy(schedule.TaskRetryPolicy))
	if err != nil {
		return fmt.Errorf("marshal task retry policy: %w", err)
	}
	firings, err := dumpFirings(schedule.Firings)
	if err != nil {
		return fmt.Errorf("marshal firings: %w", err)
	}

	pool := r.db.AsyncWrite
	if synchronous {
		pool = r.db.SyncWrite
	}

	return WithTransaction(ctx, pool, false, func(ctx context.Context, tx *Transaction) error {
		_, err := tx.ExecContext(ctx, sqlCreateSchedule,
			schedule.ID, schedule.Version, dumpTimestamp(schedule.CreatedAt), dumpTimestamp(schedule.ReadyAt),
			dumpTimestamp(schedule.Origin), int64(schedule.Interval), string(retryPolicy),
			boolToInt(schedule.Enabled), string(taskArgs), string(taskRetryPolicy),
			schedule.TaskSequenceNumber, string(firings),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrScheduleAlreadyExists
			}
			return fmt.Errorf("insert schedule: %w", err)
		}
		return nil
	})
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (domain.Schedule, error) {
	var schedule domain.Schedule
	err := WithTransaction(ctx, r.db.Read, true, func(ctx context.Context, tx *Transaction) error {
		row := tx.QueryRowContext(ctx, sqlGetScheduleByID, id)
		s, err := scanSchedule(row)
		if err != nil {
			return err
		}
		schedule = s
		return nil
	})
	return schedule, err
}

func (r *ScheduleRepository) ListBySpec(ctx context.Context, spec domain.ScheduleSpec) ([]domain.Schedule, error) {
	var where []string
	var args []any

	if spec.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolToInt(*spec.Enabled))
	}
	if spec.ReadyAsOf != nil {
		where = append(where, "ready_at <= ?")
		args = append(args, dumpTimestamp(*spec.ReadyAsOf))
	}

	query := `
		SELECT id, version, created_at, ready_at, origin, interval, retry_policy,
			enabled, task_args, task_retry_policy, task_sequence_number, firings
		FROM schedules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ready_at ASC"

	var schedules []domain.Schedule
	err := WithTransaction(ctx, r.db.Read, true, func(ctx context.Context, tx *Transaction) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list schedules: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			schedule, err := scanSchedule(rows)
			if err != nil {
				return err
			}
			schedules = append(schedules, schedule)
		}
		return rows.Err()
	})
	return schedules, err
}

func (r *ScheduleRepository) DeleteByID(ctx context.Context, id string, synchronous bool) error {
	pool := r.db.AsyncWrite
	if synchronous {
		pool = r.db.SyncWrite
	}

	return WithTransaction(ctx, pool, false, func(ctx context.Context, tx *Transaction) error {
		result, err := tx.ExecContext(ctx, sqlDeleteScheduleByID, id)
		if err != nil {
			return fmt.Errorf("delete schedule: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrScheduleNotFound
		}
		return nil
	})
}

func (r *ScheduleRepository) Update(ctx context.Context, schedule domain.Schedule, synchronous bool) error {
	taskArgs, err := json.Marshal(schedule.TaskArgs)
	if err != nil {
		return fmt.Errorf("marshal task args: %w", err)
	}
	retryPolicy, err := json.Marshal(dumpRetryPolicy(schedule.RetryPolicy))
	if err != nil {
		return fmt.Errorf("marshal retry policy: %w", err)
	}
	taskRetryPolicy, err := json.Marshal(dumpRetryPolicy(schedule.TaskRetryPolicy))
	if err != nil {
		return fmt.Errorf("marshal task retry policy: %w", err)
	}
	firings, err := dumpFirings(schedule.Firings)
	if err != nil {
		return fmt.Errorf("marshal firings: %w", err)
	}

	pool := r.db.AsyncWrite
	if synchronous {
		pool = r.db.SyncWrite
	}

	return WithTransaction(ctx, pool, false, func(ctx context.Context, tx *Transaction) error {
		result, err := tx.ExecContext(ctx, sqlUpdateScheduleByID,
			dumpTimestamp(schedule.CreatedAt), dumpTimestamp(schedule.ReadyAt), dumpTimestamp(schedule.Origin),
			int64(schedule.Interval), string(retryPolicy), boolToInt(schedule.Enabled),
			string(taskArgs), string(taskRetryPolicy), schedule.TaskSequenceNumber, string(firings),
			schedule.ID, schedule.Version,
		)
		if err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrScheduleUpdatedConcurrently
		}
		return nil
	})
}

func scanSchedule(row rowScanner) (domain.Schedule, error) {
	var (
		id, createdAt, readyAt, origin, retryPolicyJSON, taskArgsJSON, taskRetryPolicyJSON, firingsJSON string
		version, interval, taskSequenceNumber                                                           int64
		enabled                                                                                         int
	)
	err := row.Scan(&id, &version, &createdAt, &readyAt, &origin, &interval, &retryPolicyJSON,
		&enabled, &taskArgsJSON, &taskRetryPolicyJSON, &taskSequenceNumber, &firingsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Schedule{}, domain.ErrScheduleNotFound
		}
		return domain.Schedule{}, fmt.Errorf("scan schedule: %w", err)
	}

	schedule := domain.Schedule{
		ID:                 id,
		Version:            version,
		Interval:           time.Duration(interval),
		Enabled:            enabled != 0,
		TaskSequenceNumber: taskSequenceNumber,
	}

	if schedule.CreatedAt, err = loadTimestamp(createdAt); err != nil {
		return domain.Schedule{}, fmt.Errorf("parse created_at: %w", err)
	}
	if schedule.ReadyAt, err = loadTimestamp(readyAt); err != nil {
		return domain.Schedule{}, fmt.Errorf("parse ready_at: %w", err)
	}
	if schedule.Origin, err = loadTimestamp(origin); err != nil {
		return domain.Schedule{}, fmt.Errorf("parse origin: %w", err)
	}
	if err := json.Unmarshal([]byte(taskArgsJSON), &schedule.TaskArgs); err != nil {
		return domain.Schedule{}, fmt.Errorf("unmarshal task args: %w", err)
	}

	var retryPolicyDTO, taskRetryPolicyDTO retryPolicyDTO
	if err := json.Unmarshal([]byte(retryPolicyJSON), &retryPolicyDTO); err != nil {
		return domain.Schedule{}, fmt.Errorf("unmarshal retry policy: %w", err)
	}
	schedule.RetryPolicy = loadRetryPolicy(retryPolicyDTO)
	if err := json.Unmarshal([]byte(taskRetryPolicyJSON), &taskRetryPolicyDTO); err != nil {
		return domain.Schedule{}, fmt.Errorf("unmarshal task retry policy: %w", err)
	}
	schedule.TaskRetryPolicy = loadRetryPolicy(taskRetryPolicyDTO)

	if schedule.Firings, err = loadFirings([]byte(firingsJSON)); err != nil {
		return domain.Schedule{}, fmt.Errorf("unmarshal firings: %w", err)
	}

	return schedule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
