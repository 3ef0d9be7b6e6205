package githubapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
)

// Class is the retry classification of a GitHub call failure.
type Class string

const (
	// ClassRateLimited marks primary or secondary rate-limit failures.
	ClassRateLimited Class = "rate_limited"
	// ClassTransient marks failures a caller explicitly flagged as retryable.
	ClassTransient Class = "transient"
	// ClassFatal marks every other failure.
	ClassFatal Class = "fatal"
)

var (
	// ErrRateLimited matches errors surfaced after the retry budget was spent on rate limits.
	ErrRateLimited = errors.New("github rate limit exceeded")
	// ErrNotFound matches missing repositories, users and other resources.
	ErrNotFound = errors.New("github resource not found")
)

// APIError is a non-2xx REST response or a GraphQL error payload.
type APIError struct {
	StatusCode int
	Message    string
	// Type is the GraphQL error type, like RATE_LIMITED or NOT_FOUND.
	Type string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("github: HTTP %d: %s (%s)", e.StatusCode, e.Message, e.Type)
	}
	return fmt.Sprintf("github: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404s and NOT_FOUND GraphQL errors.
func (e *APIError) Is(target error) bool {
	if target == ErrNotFound {
		return e.StatusCode == http.StatusNotFound || e.Type == "NOT_FOUND"
	}
	return false
}

// RetryAfter returns the Retry-After hint carried anywhere in err's chain.
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	var limitErr *github.AbuseRateLimitError
	if errors.As(err, &limitErr) && limitErr.RetryAfter != nil && *limitErr.RetryAfter > 0 {
		return *limitErr.RetryAfter, true
	}
	return 0, false
}

// RateLimitExceededError is returned once every attempt was rate limited.
type RateLimitExceededError struct {
	Attempts int
	Err      error
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("github rate limit exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RateLimitExceededError) Unwrap() error {
	return e.Err
}

// Is matches ErrRateLimited.
func (e *RateLimitExceededError) Is(target error) bool {
	return target == ErrRateLimited
}

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// MarkTransient flags err as retryable regardless of its status code.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Classify categorizes a failure from its status code and message.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}

	var exceeded *RateLimitExceededError
	if errors.As(err, &exceeded) {
		return ClassRateLimited
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return ClassRateLimited
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return ClassRateLimited
	}

	status, message, graphQLType := statusAndMessage(err)
	if graphQLType == "RATE_LIMITED" {
		return ClassRateLimited
	}
	if status == http.StatusTooManyRequests {
		return ClassRateLimited
	}
	if status == http.StatusForbidden && isRateLimitMessage(message) {
		return ClassRateLimited
	}

	var transient *transientError
	if errors.As(err, &transient) {
		return ClassTransient
	}
	return ClassFatal
}

// IsRateLimited reports whether err classifies as a rate limit.
func IsRateLimited(err error) bool {
	return Classify(err) == ClassRateLimited
}

// IsNotFound reports whether err is a 404 or GraphQL NOT_FOUND.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

func statusAndMessage(err error) (int, string, string) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, apiErr.Message, apiErr.Type
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		status := 0
		if ghErr.Response != nil {
			status = ghErr.Response.StatusCode
		}
		return status, ghErr.Message, ""
	}
	return 0, err.Error(), ""
}

// isRateLimitMessage matches the vocabulary GitHub uses on rate-limit 403s.
func isRateLimitMessage(message string) bool {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "secondary rate limit") ||
		strings.Contains(lower, "abuse detection") {
		return true
	}
	return strings.Contains(lower, "limit") && strings.Contains(lower, "403")
}
