package domain

import "time"

// CleanupPolicy controls how long a terminal task is retained before the
// cleanup worker deletes it.
type CleanupPolicy struct {
	DeleteSucceededAfter time.Duration
	DeleteFailedAfter    time.Duration
}

func (p CleanupPolicy) SucceededDeadline(now time.Time) time.Time {
	return now.Add(-p.DeleteSucceededAfter)
}

func (p CleanupPolicy) FailedDeadline(now time.Time) time.Time {
	return now.Add(-p.DeleteFailedAfter)
}
