// Package retry implements a reusable retry policy for operations that
// fail transiently, such as BGG collection requests that return a
// queued status before the export is ready.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes how an operation is retried. The zero value retries
// nothing; use a constructor or fill the fields explicitly.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Backoff returns the delay before retry number attempt (1-based,
	// counting retries, not tries). Nil means no delay.
	Backoff func(attempt int) time.Duration
	// Retryable reports whether an error is worth retrying. Nil means
	// every error is retryable.
	Retryable func(err error) bool
}

// Linear returns a policy whose delay grows linearly: base, 2*base,
// 3*base, and so on.
func Linear(maxAttempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * base
		},
	}
}

// WithRetryable returns a copy of the policy restricted to errors the
// predicate accepts.
func (p Policy) WithRetryable(pred func(err error) bool) Policy {
	p.Retryable = pred
	return p
}

// Do runs fn until it succeeds, exhausts the attempt budget, hits a
// non-retryable error, or the context is cancelled. The last error is
// returned wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
