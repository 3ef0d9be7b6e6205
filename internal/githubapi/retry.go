package githubapi

import (
	"context"
	"errors"
	"time"
)

// RetryConfig configures WithRetry.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryConfig is three attempts with a one second base delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// RetryObserver is notified before every backoff sleep.
type RetryObserver func(class Class, attempt int, wait time.Duration, err error)

// WithRetry runs op until it succeeds, fails fatally, or attempts run out.
// Rate-limited and transient failures wait BaseDelay*2^i before retry i+1.
// A nil sleep waits on a timer that ctx cancellation cuts short.
func WithRetry[T any](
	ctx context.Context,
	cfg RetryConfig,
	sleep func(time.Duration),
	observe RetryObserver,
	op func(ctx context.Context) (T, error),
) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var zero T
	var lastErr error
	lastClass := ClassFatal
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		lastClass = Classify(err)
		if lastClass == ClassFatal {
			return zero, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		wait := backoffForAttempt(cfg.BaseDelay, attempt)
		if observe != nil {
			observe(lastClass, attempt+1, wait, err)
		}
		if err := pause(ctx, sleep, wait); err != nil {
			return zero, err
		}
	}

	var exceeded *RateLimitExceededError
	if lastClass == ClassRateLimited && !errors.As(lastErr, &exceeded) {
		return zero, &RateLimitExceededError{
			Attempts: cfg.MaxAttempts,
			Err:      lastErr,
		}
	}
	return zero, lastErr
}

// pause waits for d and reports ctx cancellation seen during or after the wait.
func pause(ctx context.Context, sleep func(time.Duration), d time.Duration) error {
	if sleep != nil {
		sleep(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func backoffForAttempt(base time.Duration, attempt int) time.Duration {
	backoff := base
	for i := 0; i < attempt; i++ {
		backoff *= 2
	}
	return backoff
}
