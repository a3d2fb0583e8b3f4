package reembed

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// maxBackoff caps the delay between two attempts.
const maxBackoff = 30 * time.Second

// RetryWithBackoff runs operation up to maxAttempts times, sleeping
// baseDelay * 2^(attempt-1) between failures, capped at maxBackoff.
// Context errors are never retried. Returns the error from the last attempt
// if all attempts fail.
func RetryWithBackoff(ctx context.Context, logger *slog.Logger, maxAttempts int, baseDelay time.Duration, operation func(context.Context) error) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}

		logger.Debug("operation failed, will retry", "attempt", attempt, "max_attempts", maxAttempts, "err", lastErr)

		// Don't sleep after the last attempt
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, maxBackoff)
	}

	return lastErr
}
