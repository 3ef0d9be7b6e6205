package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cam3ron2/github-insights/internal/model"
)

var testNow = time.Date(2025, time.February, 18, 12, 0, 0, 0, time.UTC)

type graphQLCall struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type testClient struct {
	*Client
	server *httptest.Server

	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *testClient) recordedSleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type testClientOptions struct {
	authenticated bool
	tracker       *RateLimitTracker
	observer      Observer
}

func newTestClient(t *testing.T, handler http.Handler, opts testClientOptions) *testClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cred := Credential{}
	if opts.authenticated {
		cred.Token = "ghp_test"
	}
	httpClient, err := NewHTTPClient(cred, TransportConfig{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTPClient() unexpected error: %v", err)
	}
	client, err := NewClient(httpClient, ClientConfig{
		APIBaseURL:    server.URL,
		GraphQLURL:    server.URL + "/graphql",
		Authenticated: opts.authenticated,
		Tracker:       opts.tracker,
		Observer:      opts.observer,
	})
	if err != nil {
		t.Fatalf("NewClient() unexpected error: %v", err)
	}

	wrapped := &testClient{Client: client, server: server}
	client.Now = func() time.Time { return testNow }
	client.Sleep = func(d time.Duration) {
		wrapped.mu.Lock()
		defer wrapped.mu.Unlock()
		wrapped.sleeps = append(wrapped.sleeps, d)
	}
	return wrapped
}

// graphQLHandler decodes each GraphQL POST and delegates the response body.
func graphQLHandler(t *testing.T, respond func(call graphQLCall, w http.ResponseWriter)) http.Handler {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var call graphQLCall
		if err := json.Unmarshal(raw, &call); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		respond(call, w)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

type recordingObserver struct {
	mu         sync.Mutex
	requests   map[string]int
	retries    map[Class]int
	rateLimits []model.RateLimitInfo
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		requests: map[string]int{},
		retries:  map[Class]int{},
	}
}

func (o *recordingObserver) ObserveRequest(endpoint string, _ int, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests[endpoint]++
}

func (o *recordingObserver) ObserveRetry(_ string, class Class) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries[class]++
}

func (o *recordingObserver) ObserveRateLimit(info model.RateLimitInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rateLimits = append(o.rateLimits, info)
}

func rateLimitHandler(status int, body string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, _ *http.Request) {
		writeRaw(w, status, body)
	})
	return mux
}

const rateLimitBody = `{
  "resources": {"core": {"limit": 60, "remaining": 42, "reset": 1739887200, "used": 18}},
  "rate": {"limit": 60, "remaining": 42, "reset": 1739887200, "used": 18}
}`

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		httpClient *http.Client
		cfg        ClientConfig
		wantErr    bool
	}{
		{name: "defaults", httpClient: &http.Client{}},
		{name: "nil_http_client", httpClient: nil, wantErr: true},
		{name: "bad_api_url", httpClient: &http.Client{}, cfg: ClientConfig{APIBaseURL: "::bad"}, wantErr: true},
		{name: "bad_graphql_url", httpClient: &http.Client{}, cfg: ClientConfig{GraphQLURL: "nohost"}, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(tc.httpClient, tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NewClient() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient() unexpected error: %v", err)
			}
			if client.retry != DefaultRetryConfig() {
				t.Fatalf("retry = %#v, want default", client.retry)
			}
			if client.rest.BaseURL.String() != defaultAPIBaseURL {
				t.Fatalf("BaseURL = %q, want %q", client.rest.BaseURL.String(), defaultAPIBaseURL)
			}
		})
	}
}

func TestUpdateRateLimit(t *testing.T) {
	t.Parallel()

	previous := model.RateLimitInfo{Limit: 60, Remaining: 59, Resource: "core"}

	testCases := []struct {
		name          string
		authenticated bool
		status        int
		wantOK        bool
		wantTracked   model.RateLimitInfo
	}{
		{
			name:   "unauthenticated_updates_tracker",
			status: http.StatusOK,
			wantOK: true,
			wantTracked: model.RateLimitInfo{
				Limit:      60,
				Remaining:  42,
				Used:       18,
				ResetAt:    time.Unix(1739887200, 0).UTC(),
				Resource:   "core",
				ObservedAt: testNow,
			},
		},
		{
			name:          "authenticated_leaves_tracker",
			authenticated: true,
			status:        http.StatusOK,
			wantOK:        true,
			wantTracked:   previous,
		},
		{
			name:        "failure_keeps_previous_snapshot",
			status:      http.StatusInternalServerError,
			wantOK:      false,
			wantTracked: previous,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tracker := NewRateLimitTracker(nil)
			tracker.Update(context.Background(), previous)
			body := rateLimitBody
			if tc.status != http.StatusOK {
				body = `{"message":"boom"}`
			}
			client := newTestClient(t, rateLimitHandler(tc.status, body), testClientOptions{
				authenticated: tc.authenticated,
				tracker:       tracker,
			})

			info, ok := client.UpdateRateLimit(context.Background())
			if ok != tc.wantOK {
				t.Fatalf("UpdateRateLimit() ok = %t, want %t", ok, tc.wantOK)
			}
			if ok && info.Remaining != 42 {
				t.Fatalf("UpdateRateLimit() remaining = %d, want 42", info.Remaining)
			}

			tracked, known := tracker.Snapshot()
			if !known {
				t.Fatalf("Snapshot() known = false, want true")
			}
			if tracked != tc.wantTracked {
				t.Fatalf("Snapshot() = %#v, want %#v", tracked, tc.wantTracked)
			}
		})
	}
}

func TestGraphQLResponseHeadersFeedObserverOnly(t *testing.T) {
	t.Parallel()

	handler := graphQLHandler(t, func(_ graphQLCall, w http.ResponseWriter) {
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "7")
		w.Header().Set("X-RateLimit-Reset", "1739887200")
		writeRaw(w, http.StatusOK, `{"data":{"repository":{"defaultBranchRef":null}}}`)
	})
	tracker := NewRateLimitTracker(nil)
	observer := newRecordingObserver()
	client := newTestClient(t, handler, testClientOptions{tracker: tracker, observer: observer})

	if _, err := client.FetchCommitHistory(context.Background(), "octo", "empty", nil); err != nil {
		t.Fatalf("FetchCommitHistory() unexpected error: %v", err)
	}

	if len(observer.rateLimits) != 1 || observer.rateLimits[0].Remaining != 7 {
		t.Fatalf("observed rate limits = %#v, want one with remaining 7", observer.rateLimits)
	}
	if observer.requests["commit_history"] != 1 {
		t.Fatalf("observed commit_history requests = %d, want 1", observer.requests["commit_history"])
	}
	if _, known := tracker.Snapshot(); known {
		t.Fatalf("tracker updated from response headers, want probe-only updates")
	}
}

func TestErrorResponsesCarryRetryAfter(t *testing.T) {
	t.Parallel()

	handler := graphQLHandler(t, func(_ graphQLCall, w http.ResponseWriter) {
		w.Header().Set("Retry-After", "45")
		writeRaw(w, http.StatusForbidden, `{"message":"You have exceeded a secondary rate limit"}`)
	})
	client := newTestClient(t, handler, testClientOptions{})

	_, err := client.FetchCommitHistory(context.Background(), "octo", "busy", nil)
	if !IsRateLimited(err) {
		t.Fatalf("FetchCommitHistory() error = %v, want rate limited", err)
	}
	wait, ok := RetryAfter(err)
	if !ok || wait != 45*time.Second {
		t.Fatalf("RetryAfter() = %s, %t, want 45s, true", wait, ok)
	}
}

func TestGraphQLSendsJSONPost(t *testing.T) {
	t.Parallel()

	seen := make(chan *http.Request, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Clone(context.Background())
		writeRaw(w, http.StatusOK, `{"data":{"ok":true}}`)
	})
	client := newTestClient(t, mux, testClientOptions{authenticated: true})

	var out struct {
		OK bool `json:"ok"`
	}
	if err := client.graphQL(context.Background(), "probe", "query { ok }", nil, &out); err != nil {
		t.Fatalf("graphQL() unexpected error: %v", err)
	}
	if !out.OK {
		t.Fatalf("graphQL() decoded ok = false, want true")
	}

	req := <-seen
	if req.Method != http.MethodPost {
		t.Fatalf("method = %s, want POST", req.Method)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", got)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer ghp_test" {
		t.Fatalf("Authorization = %q, want bearer token", got)
	}
}

func TestGraphQLEmptyDataIsError(t *testing.T) {
	t.Parallel()

	handler := graphQLHandler(t, func(_ graphQLCall, w http.ResponseWriter) {
		writeRaw(w, http.StatusOK, `{"data":null}`)
	})
	client := newTestClient(t, handler, testClientOptions{})

	var out map[string]any
	err := client.graphQL(context.Background(), "probe", "query { ok }", nil, &out)
	if err == nil || !strings.Contains(err.Error(), "empty data") {
		t.Fatalf("graphQL() error = %v, want empty data error", err)
	}
}

func TestGraphQLErrorsToAPIError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		errs       []graphQLError
		wantType   string
		wantStatus int
	}{
		{
			name:       "rate_limited_wins",
			errs:       []graphQLError{{Type: "NOT_FOUND", Message: "a"}, {Type: "RATE_LIMITED", Message: "b"}},
			wantType:   "RATE_LIMITED",
			wantStatus: http.StatusOK,
		},
		{
			name:       "not_found_maps_to_404",
			errs:       []graphQLError{{Type: "NOT_FOUND", Message: "Could not resolve to a Repository"}},
			wantType:   "NOT_FOUND",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "other_type_kept",
			errs:       []graphQLError{{Type: "FORBIDDEN", Message: "nope"}},
			wantType:   "FORBIDDEN",
			wantStatus: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := graphQLErrorsToAPIError(http.StatusOK, tc.errs)
			if got.Type != tc.wantType {
				t.Fatalf("Type = %q, want %q", got.Type, tc.wantType)
			}
			if got.StatusCode != tc.wantStatus {
				t.Fatalf("StatusCode = %d, want %d", got.StatusCode, tc.wantStatus)
			}
		})
	}
}

func TestLenient(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: true},
		{name: "validation", err: &APIError{StatusCode: http.StatusUnprocessableEntity}, want: true},
		{name: "rate_limited", err: &APIError{StatusCode: http.StatusTooManyRequests}, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: errors.Join(errors.New("x"), context.DeadlineExceeded), want: false},
	}
	for _, tc := range testCases {
		if got := lenient(tc.err); got != tc.want {
			t.Fatalf("lenient(%s) = %t, want %t", tc.name, got, tc.want)
		}
	}
}
