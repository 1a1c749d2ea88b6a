package domain

import (
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	maxDelay := 10 * time.Second
	p := RetryPolicy{
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      &maxDelay,
		MaxAttempts:   5,
	}

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, c := range cases {
		got, err := p.Delay(c.attempts)
		if err != nil {
			t.Fatalf("Delay(%d): unexpected error %v", c.attempts, err)
		}
		if got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.attempts, got, c.want)
		}
	}
}

func TestRetryPolicyDelayCapsAtMaxDelay(t *testing.T) {
	maxDelay := 3 * time.Second
	p := RetryPolicy{
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      &maxDelay,
		MaxAttempts:   10,
	}
	got, err := p.Delay(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != maxDelay {
		t.Errorf("Delay(3) = %v, want capped %v", got, maxDelay)
	}
}

func TestRetryPolicyDelayTooManyAttempts(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2.0, MaxAttempts: 3}
	if _, err := p.Delay(3); err == nil {
		t.Fatal("expected an error once attempts reaches MaxAttempts")
	}
}

func TestRetryPolicyTotalDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2.0, MaxAttempts: 3}
	// Delay(0)=0, Delay(1)=1s, Delay(2)=2s: sums the span across every
	// attempt this policy allows before giving up.
	total := p.TotalDelay()
	want := 3 * time.Second
	if total != want {
		t.Errorf("TotalDelay() = %v, want %v", total, want)
	}
}
