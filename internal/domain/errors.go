// Package domain holds the Task and Schedule aggregates: the state
// machines and invariants the rest of the system is built around.
package domain

import "errors"

var (
	ErrTaskNotFound            = errors.New("task not found")
	ErrTaskAlreadyExists       = errors.New("task with this id already exists")
	ErrTaskNotActive           = errors.New("task is not active")
	ErrTaskNotReady            = errors.New("task is not ready")
	ErrTaskUpdatedConcurrently = errors.New("task was updated concurrently")
	ErrTaskHandlerNotFound     = errors.New("no task handler registered")

	ErrScheduleNotFound            = errors.New("schedule not found")
	ErrScheduleAlreadyExists       = errors.New("schedule with this id already exists")
	ErrScheduleNotEnabled          = errors.New("schedule is not enabled")
	ErrScheduleNotReady            = errors.New("schedule is not ready")
	ErrScheduleFiringNotEnded      = errors.New("schedule firing has not ended yet")
	ErrScheduleFiringAlreadyEnded  = errors.New("schedule firing has already ended")
	ErrScheduleFiringNotBegun      = errors.New("schedule firing has not begun yet")
	ErrScheduleUpdatedConcurrently = errors.New("schedule was updated concurrently")

	// errTooManyAttempts is internal to retry arithmetic: the aggregate
	// translates it into a terminal state and never lets it escape.
	errTooManyAttempts = errors.New("too many attempts")
)
