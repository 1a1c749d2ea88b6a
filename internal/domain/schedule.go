package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScheduleFiring records one attempt by a schedule to produce its next
// task. Firings are retained only for the in-progress sequence number:
// BeginFiring clears them when the last firing belongs to an earlier
// sequence number.
type ScheduleFiring struct {
	TaskSequenceNumber int64
	BegunAt            time.Time
	EndedAt            *time.Time
	Error              *string
}

func beginScheduleFiring(now time.Time, seq int64) ScheduleFiring {
	return ScheduleFiring{TaskSequenceNumber: seq, BegunAt: now}
}

func (f *ScheduleFiring) end(now time.Time, errMsg *string) {
	f.EndedAt = &now
	f.Error = errMsg
}

func (f ScheduleFiring) Ended() bool {
	return f.EndedAt != nil
}

func (f ScheduleFiring) Duration() *time.Duration {
	if f.EndedAt == nil {
		return nil
	}
	d := f.EndedAt.Sub(f.BegunAt)
	return &d
}

// Schedule is a recurring task generator that fires on a fixed interval.
// There is no cron-expression support.
type Schedule struct {
	ID                 string
	Version            int64
	CreatedAt          time.Time
	ReadyAt            time.Time
	Origin             time.Time
	Interval           time.Duration
	RetryPolicy        RetryPolicy
	Enabled            bool
	TaskArgs           any
	TaskRetryPolicy    RetryPolicy
	TaskSequenceNumber int64
	Firings            []ScheduleFiring
}

func NewSchedule(
	now time.Time,
	id string,
	delay time.Duration,
	interval time.Duration,
	retryPolicy RetryPolicy,
	enabled bool,
	taskArgs any,
	taskRetryPolicy RetryPolicy,
) Schedule {
	origin := now.Add(delay)
	return Schedule{
		ID:                 id,
		Version:            1,
		CreatedAt:          now,
		ReadyAt:            origin,
		Origin:             origin,
		Interval:           interval,
		RetryPolicy:        retryPolicy,
		Enabled:            enabled,
		TaskArgs:           taskArgs,
		TaskRetryPolicy:    taskRetryPolicy,
		TaskSequenceNumber: 1,
		Firings:            nil,
	}
}

func (s Schedule) Ready(now time.Time) bool {
	return !s.ReadyAt.After(now)
}

func (s Schedule) LastFiring() *ScheduleFiring {
	if len(s.Firings) == 0 {
		return nil
	}
	return &s.Firings[len(s.Firings)-1]
}

// taskNamespace is the canonical OID UUID namespace, so re-deriving a
// schedule's nth task id gives the same answer for any implementation of
// this scheme.
var taskNamespace = uuid.NameSpaceOID

// GenerateTaskID deterministically derives the id of the task this
// schedule is about to produce, making schedule firing idempotent across
// crashes: re-firing after a crash between task insert and schedule
// update reproduces the same id, and the repository rejects the
// duplicate insert.
func (s Schedule) GenerateTaskID() string {
	name := fmt.Sprintf("%s.%d", s.ID, s.TaskSequenceNumber)
	return uuid.NewSHA1(taskNamespace, []byte(name)).String()
}

// BeginFiring starts a new firing attempt for the current sequence number.
func (s *Schedule) BeginFiring(now time.Time) error {
	if !s.Enabled {
		return ErrScheduleNotEnabled
	}
	if !s.Ready(now) {
		return ErrScheduleNotReady
	}
	if last := s.LastFiring(); last != nil {
		if !last.Ended() {
			return ErrScheduleFiringNotEnded
		}
		if last.TaskSequenceNumber != s.TaskSequenceNumber {
			s.Firings = nil
		}
	}
	s.Firings = append(s.Firings, beginScheduleFiring(now, s.TaskSequenceNumber))
	return nil
}

// EndFiring closes the in-progress firing. A nil errMsg advances the
// schedule to its next period. On error, the schedule retries within the
// current period if the retry lands before the next period starts;
// otherwise (or once retries are exhausted) it falls through and advances
// anyway, so a permanently-failing firing never stalls the schedule.
func (s *Schedule) EndFiring(now time.Time, errMsg *string) error {
	last := s.LastFiring()
	if last == nil {
		return ErrScheduleFiringNotBegun
	}
	if last.Ended() {
		return ErrScheduleFiringAlreadyEnded
	}
	last.end(now, errMsg)

	if errMsg != nil {
		if retryAt, err := s.nextRetryAt(now); err == nil && retryAt.Before(s.nextFiringAt()) {
			s.ReadyAt = retryAt
			return nil
		}
	}

	s.TaskSequenceNumber++
	s.Origin = s.Origin.Add(s.Interval)
	s.ReadyAt = s.Origin
	return nil
}

func (s Schedule) nextFiringAt() time.Time {
	return s.Origin.Add(s.Interval)
}

func (s Schedule) nextRetryAt(now time.Time) (time.Time, error) {
	delay, err := s.RetryPolicy.Delay(len(s.Firings))
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(delay), nil
}
