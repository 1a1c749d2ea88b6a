package domain

import "time"

type TaskState string

const (
	TaskActive    TaskState = "active"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// TaskExecution records one attempt at running a task's handler. The last
// execution in a Task's Executions slice may be in progress (EndedAt nil).
type TaskExecution struct {
	BegunAt time.Time
	EndedAt *time.Time
	Error   *string
}

func beginTaskExecution(now time.Time) TaskExecution {
	return TaskExecution{BegunAt: now}
}

func (e *TaskExecution) end(now time.Time, errMsg *string) {
	e.EndedAt = &now
	e.Error = errMsg
}

func (e TaskExecution) Ended() bool {
	return e.EndedAt != nil
}

func (e TaskExecution) Duration() *time.Duration {
	if e.EndedAt == nil {
		return nil
	}
	d := e.EndedAt.Sub(e.BegunAt)
	return &d
}

// Task is the unit of deferred work. Args carries an opaque, caller-owned
// payload (arbitrary JSON-marshalable data) that must round-trip
// byte-faithfully through persistence.
type Task struct {
	ID          string
	Version     int64
	CreatedAt   time.Time
	State       TaskState
	Args        any
	ReadyAt     time.Time
	RetryPolicy RetryPolicy
	Executions  []TaskExecution
	ScheduleID  *string
}

// NewTask constructs a fresh ACTIVE task. id is caller-supplied (or
// generated by the service layer) so it can be the deterministic id a
// schedule produces for idempotent firing.
func NewTask(now time.Time, id string, args any, delay time.Duration, retryPolicy RetryPolicy, scheduleID *string) Task {
	return Task{
		ID:          id,
		Version:     1,
		CreatedAt:   now,
		State:       TaskActive,
		Args:        args,
		ReadyAt:     now.Add(delay),
		RetryPolicy: retryPolicy,
		Executions:  nil,
		ScheduleID:  scheduleID,
	}
}

func (t Task) Ready(now time.Time) bool {
	return !t.ReadyAt.After(now)
}

func (t Task) LastExecution() *TaskExecution {
	if len(t.Executions) == 0 {
		return nil
	}
	return &t.Executions[len(t.Executions)-1]
}

// BeginExecution starts a new execution attempt. Callers must not hold a
// stale in-memory Task across concurrent mutation; CAS at the repository
// layer is what actually serializes concurrent execute_task calls.
func (t *Task) BeginExecution(now time.Time) error {
	if t.State != TaskActive {
		return ErrTaskNotActive
	}
	if !t.Ready(now) {
		return ErrTaskNotReady
	}
	if last := t.LastExecution(); last != nil && !last.Ended() {
		panic("domain: begin_execution called with an unended last execution")
	}
	t.Executions = append(t.Executions, beginTaskExecution(now))
	return nil
}

// EndExecution closes the in-progress execution. A nil errMsg means
// success. On failure, retry arithmetic either reschedules the task or, on
// TooManyAttempts, terminates it as FAILED.
func (t *Task) EndExecution(now time.Time, errMsg *string) {
	last := &t.Executions[len(t.Executions)-1]
	last.end(now, errMsg)

	if errMsg == nil {
		t.State = TaskSucceeded
		return
	}

	delay, err := t.RetryPolicy.Delay(len(t.Executions))
	if err != nil {
		t.State = TaskFailed
		return
	}
	t.ReadyAt = now.Add(delay)
}
