// Package retry provides a shared retry-with-backoff helper used by the
// load balancer, health monitor and context refresher.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Options controls the retry behavior of Do.
type Options struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt. Each subsequent
	// delay doubles until MaxDelay is reached.
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultOptions returns the retry options used when a zero Options is given.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Do executes fn with exponential backoff. It returns nil on the first
// successful attempt, the last error once attempts are exhausted, or the
// context error if ctx is canceled while waiting between attempts.
func Do(ctx context.Context, opts Options, fn func() error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultOptions().BaseDelay
	}

	var lastErr error
	delay := opts.BaseDelay
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == opts.MaxAttempts-1 {
			break
		}

		slog.Debug("operation failed, retrying",
			"attempt", attempt+1,
			"max_attempts", opts.MaxAttempts,
			"wait", delay,
			"error", lastErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if opts.MaxDelay > 0 && delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
	return lastErr
}

// Backoff returns the exponential delay for the given zero-based attempt,
// capped at maxDelay when maxDelay is positive.
func Backoff(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if maxDelay > 0 && d >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
