package telegram

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy is a bounded retry with a computed delay before each
// attempt.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the delay before the given 0-based attempt
	Backoff func(attempt int) time.Duration
	// Sleep is injectable for tests; nil means a context-aware wait
	Sleep func(ctx context.Context, d time.Duration)
}

// DefaultRetryPolicy matches the delivery contract: 10 attempts, the
// delay before attempt i is i*5 seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 10,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * 5 * time.Second
		},
	}
}

// Do runs fn until it succeeds, attempts run out, or the context ends
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		}
	}

	var last error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if d := p.Backoff(attempt); d > 0 {
			sleep(ctx, d)
		}
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = err
			}
			return fmt.Errorf("giving up after %d attempts: %w", attempt, last)
		}
		if err := fn(); err == nil {
			return nil
		} else {
			last = err
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, last)
}
