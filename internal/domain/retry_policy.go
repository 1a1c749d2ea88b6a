package domain

import "time"

// RetryPolicy governs exponential-backoff re-attempts, shared by task
// execution and schedule firing.
type RetryPolicy struct {
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      *time.Duration // nil means unbounded
	MaxAttempts   int
}

// Delay returns how long to wait before the attempts-th attempt.
//
//	attempts == 0           -> 0
//	attempts >= MaxAttempts -> errTooManyAttempts
//	attempts == 1           -> InitialDelay
//	otherwise               -> min(Delay(attempts-1) * BackoffFactor, MaxDelay)
func (p RetryPolicy) Delay(attempts int) (time.Duration, error) {
	if attempts == 0 {
		return 0, nil
	}
	if attempts >= p.MaxAttempts {
		return 0, errTooManyAttempts
	}
	if attempts == 1 {
		return p.InitialDelay, nil
	}
	prev, err := p.Delay(attempts - 1)
	if err != nil {
		return 0, err
	}
	delay := time.Duration(float64(prev) * p.BackoffFactor)
	if p.MaxDelay != nil && delay > *p.MaxDelay {
		delay = *p.MaxDelay
	}
	return delay, nil
}

// TotalDelay sums Delay(i) for i in [0, MaxAttempts): the worst-case
// wall-clock span a task or schedule firing can spend retrying.
func (p RetryPolicy) TotalDelay() time.Duration {
	var total time.Duration
	for i := range p.MaxAttempts {
		d, err := p.Delay(i)
		if err != nil {
			break
		}
		total += d
	}
	return total
}
