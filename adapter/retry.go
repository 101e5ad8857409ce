package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BaseBackoff is the delay before the first retry; each further retry
// doubles it.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the delay before retry number i (1-based).
func Backoff(i int) time.Duration {
	if i < 1 {
		return 0
	}
	return time.Duration(1<<uint(i-1)) * BaseBackoff
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("non-retriable error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early on success, on a *PermanentError, or when ctx
// is done. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		// Backoff before retries, not before the first attempt
		if i > 0 {
			timer := time.NewTimer(Backoff(i))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("%s: %w", name, perm)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
