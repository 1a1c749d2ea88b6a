package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewScheduleIsReadyAfterDelay(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSchedule(now, "s1", 10*time.Second, time.Minute, RetryPolicy{MaxAttempts: 3}, true, nil, RetryPolicy{MaxAttempts: 3})

	if s.Ready(now) {
		t.Fatal("schedule should not be ready immediately")
	}
	if !s.Ready(now.Add(10 * time.Second)) {
		t.Fatal("schedule should be ready once its delay elapses")
	}
	if s.TaskSequenceNumber != 1 {
		t.Fatalf("TaskSequenceNumber = %d, want 1", s.TaskSequenceNumber)
	}
}

func TestGenerateTaskIDIsDeterministic(t *testing.T) {
	now := time.Now()
	s := NewSchedule(now, "s1", 0, time.Minute, RetryPolicy{MaxAttempts: 3}, true, nil, RetryPolicy{MaxAttempts: 3})

	first := s.GenerateTaskID()
	second := s.GenerateTaskID()
	if first != second {
		t.Fatalf("GenerateTaskID is not stable across calls: %q != %q", first, second)
	}

	s.TaskSequenceNumber++
	if third := s.GenerateTaskID(); third == first {
		t.Fatal("GenerateTaskID should change once the sequence number advances")
	}
}

func TestBeginFiringRejectsDisabledOrNotReady(t *testing.T) {
	now := time.Now()
	s := NewSchedule(now, "s1", time.Minute, time.Minute, RetryPolicy{MaxAttempts: 3}, true, nil, RetryPolicy{MaxAttempts: 3})
	if err := s.BeginFiring(now); !errors.Is(err, ErrScheduleNotReady) {
		t.Fatalf("expected ErrScheduleNotReady, got %v", err)
	}

	s2 := NewSchedule(now, "s2", 0, time.Minute, RetryPolicy{MaxAttempts: 3}, false, nil, RetryPolicy{MaxAttempts: 3})
	if err := s2.BeginFiring(now); !errors.Is(err, ErrScheduleNotEnabled) {
		t.Fatalf("expected ErrScheduleNotEnabled, got %v", err)
	}
}

func TestBeginFiringRejectsOverlappingFiring(t *testing.T) {
	now := time.Now()
	s := NewSchedule(now, "s1", 0, time.Minute, RetryPolicy{MaxAttempts: 3}, true, nil, RetryPolicy{MaxAttempts: 3})

	if err := s.BeginFiring(now); err != nil {
		t.Fatalf("first BeginFiring: %v", err)
	}
	if err := s.BeginFiring(now); !errors.Is(err, ErrScheduleFiringNotEnded) {
		t.Fatalf("expected ErrScheduleFiringNotEnded, got %v", err)
	}
}

func TestEndFiringSuccessAdvancesToNextPeriod(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	interval := time.Minute
	s := NewSchedule(now, "s1", 0, interval, RetryPolicy{MaxAttempts: 3}, true, nil, RetryPolicy{MaxAttempts: 3})

	if err := s.BeginFiring(now); err != nil {
		t.Fatalf("BeginFiring: %v", err)
	}
	if err := s.EndFiring(now, nil); err != nil {
		t.Fatalf("EndFiring: %v", err)
	}

	if s.TaskSequenceNumber != 2 {
		t.Fatalf("TaskSequenceNumber = %d, want 2", s.TaskSequenceNumber)
	}
	if !s.Origin.Equal(now.Add(interval)) {
		t.Fatalf("Origin = %v, want %v", s.Origin, now.Add(interval))
	}
	if !s.ReadyAt.Equal(s.Origin) {
		t.Fatalf("ReadyAt = %v, want %v", s.ReadyAt, s.Origin)
	}
}

func TestEndFiringFailureRetriesWithinPeriod(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	interval := time.Hour
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2.0, MaxAttempts: 5}
	s := NewSchedule(now, "s1", 0, interval, policy, true, nil, RetryPolicy{MaxAttempts: 3})

	if err := s.BeginFiring(now); err != nil {
		t.Fatalf("BeginFiring: %v", err)
	}
	errMsg := "boom"
	if err := s.EndFiring(now, &errMsg); err != nil {
		t.Fatalf("EndFiring: %v", err)
	}

	if s.TaskSequenceNumber != 1 {
		t.Fatalf("a mid-period retry must not advance the sequence number, got %d", s.TaskSequenceNumber)
	}
	if !s.ReadyAt.After(now) {
		t.Fatal("expected ready_at to move into the future for a retry")
	}
}

func TestEndFiringWithoutBeginFails(t *testing.T) {
	now := time.Now()
	s := NewSchedule(now, "s1", 0, time.Minute, RetryPolicy{MaxAttempts: 3}, true, nil, RetryPolicy{MaxAttempts: 3})
	if err := s.EndFiring(now, nil); !errors.Is(err, ErrScheduleFiringNotBegun) {
		t.Fatalf("expected ErrScheduleFiringNotBegun, got %v", err)
	}
}
