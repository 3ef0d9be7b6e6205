package githubapi

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"
)

func TestWithRetry(t *testing.T) {
	t.Parallel()

	rateLimited := &APIError{StatusCode: http.StatusForbidden, Message: "API rate limit exceeded"}
	fatal := &APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
	transient := MarkTransient(errors.New("connection reset"))

	testCases := []struct {
		name          string
		errs          []error
		wantCalls     int
		wantSleeps    []time.Duration
		wantErr       bool
		wantExhausted bool
	}{
		{
			name:       "first_attempt_succeeds",
			errs:       nil,
			wantCalls:  1,
			wantSleeps: nil,
		},
		{
			name:       "recovers_after_rate_limits",
			errs:       []error{rateLimited, rateLimited},
			wantCalls:  3,
			wantSleeps: []time.Duration{time.Second, 2 * time.Second},
		},
		{
			name:       "transient_is_retried",
			errs:       []error{transient},
			wantCalls:  2,
			wantSleeps: []time.Duration{time.Second},
		},
		{
			name:       "fatal_aborts_immediately",
			errs:       []error{fatal, nil},
			wantCalls:  1,
			wantSleeps: nil,
			wantErr:    true,
		},
		{
			name:          "rate_limit_exhausts_attempts",
			errs:          []error{rateLimited, rateLimited, rateLimited, nil},
			wantCalls:     3,
			wantSleeps:    []time.Duration{time.Second, 2 * time.Second},
			wantErr:       true,
			wantExhausted: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var sleeps []time.Duration
			var observed []int
			calls := 0
			got, err := WithRetry(
				context.Background(),
				DefaultRetryConfig(),
				func(d time.Duration) { sleeps = append(sleeps, d) },
				func(_ Class, attempt int, _ time.Duration, _ error) { observed = append(observed, attempt) },
				func(context.Context) (string, error) {
					calls++
					if calls <= len(tc.errs) && tc.errs[calls-1] != nil {
						return "", tc.errs[calls-1]
					}
					return "ok", nil
				},
			)

			if calls != tc.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tc.wantCalls)
			}
			if !reflect.DeepEqual(sleeps, tc.wantSleeps) {
				t.Fatalf("sleeps = %v, want %v", sleeps, tc.wantSleeps)
			}
			if len(observed) != len(tc.wantSleeps) {
				t.Fatalf("observed retries = %v, want %d", observed, len(tc.wantSleeps))
			}
			if tc.wantErr {
				if err == nil {
					t.Fatalf("WithRetry() expected error, got nil")
				}
				if got := errors.Is(err, ErrRateLimited); got != tc.wantExhausted {
					t.Fatalf("errors.Is(err, ErrRateLimited) = %t, want %t", got, tc.wantExhausted)
				}
				return
			}
			if err != nil {
				t.Fatalf("WithRetry() unexpected error: %v", err)
			}
			if got != "ok" {
				t.Fatalf("WithRetry() = %q, want ok", got)
			}
		})
	}
}

func TestWithRetryDoesNotDoubleWrapExhaustion(t *testing.T) {
	t.Parallel()

	inner := &RateLimitExceededError{Attempts: 3, Err: &APIError{StatusCode: http.StatusTooManyRequests}}
	_, err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}, func(time.Duration) {}, nil,
		func(context.Context) (int, error) { return 0, inner })

	var exceeded *RateLimitExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("errors.As(err, *RateLimitExceededError) = false, want true")
	}
	if exceeded != inner {
		t.Fatalf("exceeded = %#v, want the original error", exceeded)
	}
}

func TestWithRetryStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetry(ctx, DefaultRetryConfig(), func(time.Duration) {
		t.Fatalf("sleep called after cancellation")
	}, nil, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, &APIError{StatusCode: http.StatusTooManyRequests}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithRetry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestWithRetryCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	calls := 0
	start := time.Now()
	_, err := WithRetry(ctx, RetryConfig{MaxAttempts: 3, BaseDelay: time.Minute}, nil, func(Class, int, time.Duration, error) {
		time.AfterFunc(20*time.Millisecond, cancel)
	}, func(context.Context) (int, error) {
		calls++
		return 0, &APIError{StatusCode: http.StatusTooManyRequests}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithRetry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("WithRetry() returned after %s, want prompt return on cancel", elapsed)
	}
}

func TestWithRetryChecksContextAfterInjectedSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	calls := 0
	_, err := WithRetry(ctx, DefaultRetryConfig(), func(time.Duration) { cancel() }, nil,
		func(context.Context) (int, error) {
			calls++
			return 0, MarkTransient(errors.New("connection reset"))
		})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithRetry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestBackoffForAttempt(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
	}
	for _, tc := range testCases {
		if got := backoffForAttempt(time.Second, tc.attempt); got != tc.want {
			t.Fatalf("backoffForAttempt(1s, %d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}
