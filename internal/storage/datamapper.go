package storage

import (
	"encoding/json"
	"time"

	"github.com/nilcoder/taskq/internal/domain"
)

// retryPolicyDTO, taskExecutionDTO and scheduleFiringDTO are the JSON
// representations stored in the retry_policy/executions/firings columns.
// Keeping them separate from the domain types means a storage-format
// change never ripples into domain logic.
type retryPolicyDTO struct {
	InitialDelayMillis int64   `json:"initial_delay_ms"`
	BackoffFactor      float64 `json:"backoff_factor"`
	MaxDelayMillis     *int64  `json:"max_delay_ms,omitempty"`
	MaxAttempts        int     `json:"max_attempts"`
}

func dumpRetryPolicy(p domain.RetryPolicy) retryPolicyDTO {
	dto := retryPolicyDTO{
		InitialDelayMillis: p.InitialDelay.Milliseconds(),
		BackoffFactor:      p.BackoffFactor,
		MaxAttempts:        p.MaxAttempts,
	}
	if p.MaxDelay != nil {
		ms := p.MaxDelay.Milliseconds()
		dto.MaxDelayMillis = &ms
	}
	return dto
}

func loadRetryPolicy(dto retryPolicyDTO) domain.RetryPolicy {
	p := domain.RetryPolicy{
		InitialDelay:  time.Duration(dto.InitialDelayMillis) * time.Millisecond,
		BackoffFactor: dto.BackoffFactor,
		MaxAttempts:   dto.MaxAttempts,
	}
	if dto.MaxDelayMillis != nil {
		d := time.Duration(*dto.MaxDelayMillis) * time.Millisecond
		p.MaxDelay = &d
	}
	return p
}

type taskExecutionDTO struct {
	BegunAt string  `json:"begun_at"`
	EndedAt *string `json:"ended_at,omitempty"`
	Error   *string `json:"error,omitempty"`
}

func dumpTaskExecution(e domain.TaskExecution) taskExecutionDTO {
	dto := taskExecutionDTO{BegunAt: dumpTimestamp(e.BegunAt), Error: e.Error}
	if e.EndedAt != nil {
		s := dumpTimestamp(*e.EndedAt)
		dto.EndedAt = &s
	}
	return dto
}

func loadTaskExecution(dto taskExecutionDTO) (domain.TaskExecution, error) {
	begunAt, err := loadTimestamp(dto.BegunAt)
	if err != nil {
		return domain.TaskExecution{}, err
	}
	e := domain.TaskExecution{BegunAt: begunAt, Error: dto.Error}
	if dto.EndedAt != nil {
		endedAt, err := loadTimestamp(*dto.EndedAt)
		if err != nil {
			return domain.TaskExecution{}, err
		}
		e.EndedAt = &endedAt
	}
	return e, nil
}

type scheduleFiringDTO struct {
	TaskSequenceNumber int64   `json:"task_sequence_number"`
	BegunAt            string  `json:"begun_at"`
	EndedAt            *string `json:"ended_at,omitempty"`
	Error              *string `json:"error,omitempty"`
}

func dumpScheduleFiring(f domain.ScheduleFiring) scheduleFiringDTO {
	dto := scheduleFiringDTO{
		TaskSequenceNumber: f.TaskSequenceNumber,
		BegunAt:            dumpTimestamp(f.BegunAt),
		Error:              f.Error,
	}
	if f.EndedAt != nil {
		s := dumpTimestamp(*f.EndedAt)
		dto.EndedAt = &s
	}
	return dto
}

func loadScheduleFiring(dto scheduleFiringDTO) (domain.ScheduleFiring, error) {
	begunAt, err := loadTimestamp(dto.BegunAt)
	if err != nil {
		return domain.ScheduleFiring{}, err
	}
	f := domain.ScheduleFiring{TaskSequenceNumber: dto.TaskSequenceNumber, BegunAt: begunAt, Error: dto.Error}
	if dto.EndedAt != nil {
		endedAt, err := loadTimestamp(*dto.EndedAt)
		if err != nil {
			return domain.ScheduleFiring{}, err
		}
		f.EndedAt = &endedAt
	}
	return f, nil
}

func dumpTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func loadTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func dumpExecutions(executions []domain.TaskExecution) ([]byte, error) {
	dtos := make([]taskExecutionDTO, len(executions))
	for i, e := range executions {
		dtos[i] = dumpTaskExecution(e)
	}
	return json.Marshal(dtos)
}

func loadExecutions(data []byte) ([]domain.TaskExecution, error) {
	var dtos []taskExecutionDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, err
	}
	executions := make([]domain.TaskExecution, len(dtos))
	for i, dto := range dtos {
		e, err := loadTaskExecution(dto)
		if err != nil {
			return nil, err
		}
		executions[i] = e
	}
	return executions, nil
}

func dumpFirings(firings []domain.ScheduleFiring) ([]byte, error) {
	dtos := make([]scheduleFiringDTO, len(firings))
	for i, f := range firings {
		dtos[i] = dumpScheduleFiring(f)
	}
	return json.Marshal(dtos)
}

func loadFirings(data []byte) ([]domain.ScheduleFiring, error) {
	var dtos []scheduleFiringDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, err
	}
	firings := make([]domain.ScheduleFiring, len(dtos))
	for i, dto := range dtos {
		f, err := loadScheduleFiring(dto)
		if err != nil {
			return nil, err
		}
		firings[i] = f
	}
	return firings, nil
}

// lastExecutionEndedAt mirrors the denormalized last_execution_ended_at
// column, which exists purely so ListBySpec can filter on it without
// unpacking the executions JSON blob in SQL.
func lastExecutionEndedAt(task domain.Task) *string {
	last := task.LastExecution()
	if last == nil || last.EndedAt == nil {
		return nil
	}
	s := dumpTimestamp(*last.EndedAt)
	return &s
}
