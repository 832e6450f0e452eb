package retry

import (
	"context"
	"fmt"
	"time"
)

// Error is returned once every attempt has failed. It keeps the attempt count and the last cause.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Retryer struct {
	maxAttempts uint
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryer builds a Retryer making at most maxAttempts calls (minimum one).
func NewRetryer(maxAttempts uint, baseDelay time.Duration, maxDelay time.Duration) *Retryer {
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	return &Retryer{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// Do calls fn until it succeeds, reports shouldRetry=false, or attempts run out.
// A non-retryable failure is returned as is; exhausting attempts returns *Error.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) (shouldRetry bool, err error)) error {
	var lastErr error

	for attempt := range r.maxAttempts {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return &Error{Attempts: int(attempt), Err: lastErr}
			}
			return err
		}

		shouldRetry, err := fn(ctx)
		if err == nil {
			return nil
		}
		if !shouldRetry {
			if attempt == 0 {
				return err
			}
			return &Error{Attempts: int(attempt) + 1, Err: err}
		}
		lastErr = err

		if attempt+1 < r.maxAttempts {
			select {
			case <-time.After(r.Backoff(attempt)):
			case <-ctx.Done():
				return &Error{Attempts: int(attempt) + 1, Err: lastErr}
			}
		}
	}

	return &Error{Attempts: int(r.maxAttempts), Err: lastErr}
}

// Backoff returns the delay after the given zero-based attempt: baseDelay
// doubled per attempt, capped at maxDelay.
func (r *Retryer) Backoff(attempt uint) time.Duration {
	if r.baseDelay <= 0 {
		return 0
	}
	// compare before shifting so large delays cannot overflow
	if r.baseDelay > r.maxDelay>>attempt {
		return r.maxDelay
	}
	return r.baseDelay << attempt
}

// MaxAttempts returns the configured attempt budget.
func (r *Retryer) MaxAttempts() uint { return r.maxAttempts }
