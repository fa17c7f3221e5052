package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy is an explicit retry policy value object consumed by a loop, so the
// attempt count and termination condition are directly inspectable. Every
// attempt is preceded by a backoff wait; the delay before attempt n is
// BaseDelay * 2^(n-1).
type Policy struct {
	MaxAttempts int           // total attempts before giving up
	BaseDelay   time.Duration // delay before the first attempt
	MaxDelay    time.Duration // cap on the computed delay; 0 means uncapped
}

// DefaultPolicy matches the signaling reconnection contract: five attempts,
// the n-th delayed by 2^n seconds.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
	}
}

// Delay returns the backoff before attempt number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << uint(attempt-1)
	if d < p.BaseDelay {
		// shift overflow
		d = p.MaxDelay
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// ErrExhausted wraps the last error once MaxAttempts is exceeded.
type ErrExhausted struct {
	Attempts int
	Last     error
}

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("max attempts (%d) exceeded: %v", e.Attempts, e.Last)
}

func (e *ErrExhausted) Unwrap() error { return e.Last }

// Run executes fn until it succeeds, the policy is exhausted, or ctx is
// cancelled. fn receives the 1-based attempt number. There is no immediate
// first call: each attempt, including the first, waits out its backoff.
func Run(ctx context.Context, p Policy, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled during wait: %w", ctx.Err())
		case <-time.After(p.Delay(attempt)):
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return &ErrExhausted{Attempts: p.MaxAttempts, Last: lastErr}
}
