package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy is a bounded retry with a fixed delay between attempts. Both
// service roles share it for boot-time connection checks.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do runs fn until it succeeds, the attempts are exhausted, or the context
// is canceled. The last error is returned wrapped with the operation name.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					slog.String("operation", op),
					slog.Int("attempt", attempt),
				)
			}
			return nil
		}

		logger.Warn("Operation failed, retrying",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Int("attempts_left", maxAttempts-attempt),
			slog.Any("error", lastErr),
		)

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s aborted: %w", op, ctx.Err())
			case <-time.After(p.Delay):
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, maxAttempts, lastErr)
}
