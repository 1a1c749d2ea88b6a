package domain

import "time"

// TaskSpec is a record of optional predicates describing a task query.
// Repositories translate a spec into a single SQL statement; callers must
// not post-filter results client-side.
type TaskSpec struct {
	State                    *TaskState
	ReadyAsOf                *time.Time
	LastExecutionEndedBefore *time.Time
}

// ScheduleSpec is the schedule-query equivalent of TaskSpec.
type ScheduleSpec struct {
	Enabled   *bool
	ReadyAsOf *time.Time
}
