package marketdata

import (
	"context"
	"errors"
	"time"
)

// retry calls fn up to maxAttempts times with exponential backoff starting
// at baseDelay. Retrying stops early on context cancellation or when the
// error is not retryable (only rate-limit errors are).
func retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return err
		}

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return err
}
