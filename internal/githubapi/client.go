package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/github-insights/internal/model"
	"github.com/cam3ron2/github-insights/internal/telemetry"
	"github.com/google/go-github/v75/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultAPIBaseURL     = "https://api.github.com/"
	defaultGraphQLURL     = "https://api.github.com/graphql"
	maxErrorBodyBytes     = 64 << 10
	graphQLTypeNotFound   = "NOT_FOUND"
	graphQLTypeRateLimits = "RATE_LIMITED"
)

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer receives per-call outcomes for metrics.
type Observer interface {
	ObserveRequest(endpoint string, statusCode int, err error)
	ObserveRetry(endpoint string, class Class)
	ObserveRateLimit(info model.RateLimitInfo)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, int, error) {}

func (nopObserver) ObserveRetry(string, Class) {}

func (nopObserver) ObserveRateLimit(model.RateLimitInfo) {}

// ClientConfig configures a Client.
type ClientConfig struct {
	APIBaseURL    string
	GraphQLURL    string
	UserAgent     string
	Authenticated bool
	Retry         RetryConfig
	// Tracker receives probe results and must only be set for unauthenticated clients.
	Tracker  *RateLimitTracker
	Observer Observer
	Logger   *zap.Logger
}

// Client issues GraphQL and REST calls against GitHub for one access mode.
type Client struct {
	doer          HTTPDoer
	rest          *github.Client
	graphQLURL    string
	authenticated bool
	retry         RetryConfig
	tracker       *RateLimitTracker
	observer      Observer
	logger        *zap.Logger

	// Sleep replaces the context-aware backoff wait when set.
	Sleep func(duration time.Duration)
	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewClient creates a GitHub client over an HTTP client built by NewHTTPClient.
func NewClient(httpClient *http.Client, cfg ClientConfig) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}

	apiBaseURL, err := parseAPIBaseURL(cfg.APIBaseURL, defaultAPIBaseURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(apiBaseURL.Path, "/") {
		apiBaseURL.Path += "/"
	}
	graphQLURL, err := parseAPIBaseURL(cfg.GraphQLURL, defaultGraphQLURL)
	if err != nil {
		return nil, err
	}

	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}
	var observer Observer = nopObserver{}
	if cfg.Observer != nil {
		observer = cfg.Observer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tracker := cfg.Tracker
	if cfg.Authenticated {
		tracker = nil
	}

	return &Client{
		doer:          httpClient,
		rest:          newRESTClient(httpClient, apiBaseURL, cfg.UserAgent),
		graphQLURL:    graphQLURL.String(),
		authenticated: cfg.Authenticated,
		retry:         retry,
		tracker:       tracker,
		observer:      observer,
		logger:        logger,
		Now:           time.Now,
	}, nil
}

// Authenticated reports the access mode of the client.
func (c *Client) Authenticated() bool {
	return c.authenticated
}

// UpdateRateLimit probes the rate-limit endpoint once. It never fails: on any
// error it returns false and leaves the tracked snapshot untouched.
func (c *Client) UpdateRateLimit(ctx context.Context) (model.RateLimitInfo, bool) {
	limits, resp, err := c.rest.RateLimit.Get(ctx)
	c.observeREST("rate_limit", resp, err)
	if err != nil || limits == nil || limits.GetCore() == nil {
		c.logger.Debug("rate-limit probe failed", zap.Error(err))
		return model.RateLimitInfo{}, false
	}

	core := limits.GetCore()
	info := model.RateLimitInfo{
		Limit:      core.Limit,
		Remaining:  core.Remaining,
		Used:       core.Used,
		ResetAt:    core.Reset.Time.UTC(),
		Resource:   "core",
		ObservedAt: c.Now().UTC(),
	}
	c.observer.ObserveRateLimit(info)
	if !c.authenticated {
		c.tracker.Update(ctx, info)
	}
	return info, true
}

// withClientRetry runs op under cfg, reporting backoffs to the observer and logger.
func withClientRetry[T any](ctx context.Context, c *Client, cfg RetryConfig, endpoint string, op func(ctx context.Context) (T, error)) (T, error) {
	return WithRetry(ctx, cfg, c.Sleep, func(class Class, attempt int, wait time.Duration, err error) {
		c.observer.ObserveRetry(endpoint, class)
		c.logger.Warn(
			"github call failed; backing off",
			zap.String("endpoint", endpoint),
			zap.String("class", string(class)),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}, op)
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// graphQL posts one query and decodes its data into out.
func (c *Client) graphQL(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encode %s query: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphQLURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, req, operation)
	if err != nil {
		return err
	}

	var payload graphQLResponse
	if err := decodeJSONAndClose(resp, &payload); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	if len(payload.Errors) > 0 {
		return graphQLErrorsToAPIError(resp.StatusCode, payload.Errors)
	}
	if len(payload.Data) == 0 || string(payload.Data) == "null" {
		return fmt.Errorf("%s response: empty data", operation)
	}
	if err := json.Unmarshal(payload.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", operation, err)
	}
	return nil
}

// do executes one request and converts non-2xx responses into *APIError.
func (c *Client) do(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer("github-insights/internal/githubapi").Start(
			ctx,
			"githubapi.client.do",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("github.endpoint", endpoint),
				attribute.Bool("github.authenticated", c.authenticated),
			),
		)
		defer span.End()
		req = req.WithContext(ctx)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		c.observer.ObserveRequest(endpoint, 0, err)
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}

	headers := ParseRateLimitHeaders(resp.Header)
	if headers.Present {
		c.observer.ObserveRateLimit(headers.Info(c.Now()))
	}
	if span != nil {
		span.SetAttributes(
			attribute.Int("http.status_code", resp.StatusCode),
			attribute.Int("github.rate_limit_remaining", headers.Remaining),
		)
		if headers.RetryAfter > 0 {
			span.SetAttributes(attribute.Int64("github.retry_after_seconds", int64(headers.RetryAfter/time.Second)))
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := readAPIError(resp)
		apiErr.RetryAfter = headers.RetryAfter
		c.observer.ObserveRequest(endpoint, resp.StatusCode, apiErr)
		if span != nil {
			span.SetStatus(codes.Error, apiErr.Error())
		}
		return nil, apiErr
	}

	c.observer.ObserveRequest(endpoint, resp.StatusCode, nil)
	if span != nil {
		span.SetStatus(codes.Ok, "request completed")
	}
	return resp, nil
}

func (c *Client) observeREST(endpoint string, resp *github.Response, err error) {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	c.observer.ObserveRequest(endpoint, status, err)
}

func readAPIError(resp *http.Response) *APIError {
	defer resp.Body.Close()
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		apiErr.Message = payload.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}

func graphQLErrorsToAPIError(statusCode int, graphQLErrors []graphQLError) *APIError {
	messages := make([]string, 0, len(graphQLErrors))
	errType := ""
	for _, graphQLErr := range graphQLErrors {
		messages = append(messages, graphQLErr.Message)
		switch graphQLErr.Type {
		case graphQLTypeRateLimits:
			errType = graphQLTypeRateLimits
		case graphQLTypeNotFound:
			if errType == "" {
				errType = graphQLTypeNotFound
			}
		default:
			if errType == "" {
				errType = graphQLErr.Type
			}
		}
	}

	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    strings.Join(messages, "; "),
		Type:       errType,
	}
	if errType == graphQLTypeNotFound {
		apiErr.StatusCode = http.StatusNotFound
	}
	return apiErr
}

func decodeJSONAndClose(resp *http.Response, target any) error {
	defer resp.Body.Close()
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(target); err != nil {
		return err
	}
	return nil
}

// lenient reports whether err may be swallowed by best-effort callers.
func lenient(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !IsRateLimited(err)
}
