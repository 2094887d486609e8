package helpers

import (
	"context"
	"fmt"
	"time"

	crawlerrors "sjsage522/listingworker/pkg/errors"
)

// Retry runs fn up to attempts times, waiting backoff, 2*backoff, 4*backoff...
// between tries. Only retryable errors (transport failures) are retried; any
// other error is returned immediately.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !crawlerrors.IsRetryable(lastErr) || attempt == attempts {
			break
		}

		wait := backoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	if crawlerrors.IsRetryable(lastErr) && attempts > 1 {
		return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
	}
	return lastErr
}
