package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"
)

func intPtr(v int) *int {
	return &v
}

func TestCommitCap(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		authenticated bool
		days          *int
		want          int
	}{
		{name: "unauthenticated_week", days: intPtr(7), want: 200},
		{name: "unauthenticated_month", days: intPtr(30), want: 300},
		{name: "unauthenticated_unbounded", days: nil, want: 300},
		{name: "authenticated_unbounded", authenticated: true, days: nil, want: 3000},
		{name: "authenticated_week", authenticated: true, days: intPtr(7), want: 500},
		{name: "authenticated_month", authenticated: true, days: intPtr(30), want: 2000},
		{name: "authenticated_year", authenticated: true, days: intPtr(365), want: 3000},
		{name: "authenticated_beyond_year", authenticated: true, days: intPtr(366), want: 5000},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := CommitCap(tc.authenticated, tc.days); got != tc.want {
				t.Fatalf("CommitCap() = %d, want %d", got, tc.want)
			}
		})
	}
}

func commitNodes(count, offset int) []map[string]any {
	nodes := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		login := fmt.Sprintf("dev-%d", (offset+i)%5)
		nodes = append(nodes, map[string]any{
			"committedDate": testNow.Add(-time.Duration(offset+i) * time.Hour).Format(time.RFC3339),
			"additions":     10,
			"deletions":     2,
			"message":       "change",
			"author": map[string]any{
				"name": login,
				"user": map[string]any{"login": login, "avatarUrl": "https://avatars.example/" + login},
			},
		})
	}
	return nodes
}

func historyPage(nodes []map[string]any, hasNext bool, cursor string) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"repository": map[string]any{
				"defaultBranchRef": map[string]any{
					"target": map[string]any{
						"history": map[string]any{
							"pageInfo": map[string]any{"hasNextPage": hasNext, "endCursor": cursor},
							"nodes":    nodes,
						},
					},
				},
			},
		},
	}
}

// pagedHistory serves total commits, or an endless history when total < 0.
// A positive pageLimit shortens every page below the requested size.
type pagedHistory struct {
	total     int
	pageLimit int

	mu     sync.Mutex
	served int
	firsts []int
	since  []any
}

func (h *pagedHistory) respond(call graphQLCall, w http.ResponseWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := int(call.Variables["first"].(float64))
	h.firsts = append(h.firsts, first)
	h.since = append(h.since, call.Variables["since"])

	count := first
	if h.pageLimit > 0 {
		count = min(count, h.pageLimit)
	}
	if h.total >= 0 && h.served+count > h.total {
		count = h.total - h.served
	}
	nodes := commitNodes(count, h.served)
	h.served += count
	hasNext := h.total < 0 || h.served < h.total
	writeJSON(w, http.StatusOK, historyPage(nodes, hasNext, fmt.Sprintf("cursor-%d", h.served)))
}

func TestFetchCommitHistoryRespectsCap(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		authenticated bool
		days          *int
		pageLimit     int
		wantCommits   int
		wantPages     int
	}{
		{name: "unauthenticated_unbounded", days: nil, wantCommits: 300, wantPages: 3},
		{name: "unauthenticated_week", days: intPtr(7), wantCommits: 200, wantPages: 2},
		{name: "authenticated_week", authenticated: true, days: intPtr(7), wantCommits: 500, wantPages: 5},
		{name: "authenticated_month", authenticated: true, days: intPtr(30), wantCommits: 2000, wantPages: 20},
		{name: "unauthenticated_short_pages", days: nil, pageLimit: 50, wantCommits: 150, wantPages: 3},
		{name: "authenticated_week_short_pages", authenticated: true, days: intPtr(7), pageLimit: 30, wantCommits: 150, wantPages: 5},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			history := &pagedHistory{total: -1, pageLimit: tc.pageLimit}
			client := newTestClient(t, graphQLHandler(t, history.respond), testClientOptions{authenticated: tc.authenticated})

			commits, err := client.FetchCommitHistory(context.Background(), "octo", "big", tc.days)
			if err != nil {
				t.Fatalf("FetchCommitHistory() unexpected error: %v", err)
			}
			if len(commits) != tc.wantCommits {
				t.Fatalf("len(commits) = %d, want %d", len(commits), tc.wantCommits)
			}
			if len(history.firsts) != tc.wantPages {
				t.Fatalf("pages = %d, want %d", len(history.firsts), tc.wantPages)
			}
			for _, first := range history.firsts {
				if first > maxPageSize {
					t.Fatalf("page size = %d, want <= %d", first, maxPageSize)
				}
			}
			for _, since := range history.since {
				if (tc.days == nil) != (since == nil) {
					t.Fatalf("since = %v with days %v", since, tc.days)
				}
			}
		})
	}
}

func TestFetchCommitHistorySinceWindow(t *testing.T) {
	t.Parallel()

	history := &pagedHistory{total: 3}
	client := newTestClient(t, graphQLHandler(t, history.respond), testClientOptions{})

	if _, err := client.FetchCommitHistory(context.Background(), "octo", "small", intPtr(30)); err != nil {
		t.Fatalf("FetchCommitHistory() unexpected error: %v", err)
	}
	want := testNow.AddDate(0, 0, -30).Format(time.RFC3339)
	if len(history.since) != 1 || history.since[0] != want {
		t.Fatalf("since = %v, want %q", history.since, want)
	}
}

func TestFetchCommitHistoryShortHistory(t *testing.T) {
	t.Parallel()

	history := &pagedHistory{total: 150}
	client := newTestClient(t, graphQLHandler(t, history.respond), testClientOptions{})

	commits, err := client.FetchCommitHistory(context.Background(), "octo", "medium", nil)
	if err != nil {
		t.Fatalf("FetchCommitHistory() unexpected error: %v", err)
	}
	if len(commits) != 150 {
		t.Fatalf("len(commits) = %d, want 150", len(commits))
	}
	if !reflect.DeepEqual(history.firsts, []int{100, 100}) {
		t.Fatalf("page sizes = %v, want [100 100]", history.firsts)
	}
	if commits[0].Additions != 10 || commits[0].Deletions != 2 {
		t.Fatalf("commit[0] = %#v, want additions 10 deletions 2", commits[0])
	}
	if !commits[0].CommittedAt.Equal(testNow) {
		t.Fatalf("commit[0].CommittedAt = %s, want %s", commits[0].CommittedAt, testNow)
	}
}

func TestFetchCommitHistoryResolvesAuthors(t *testing.T) {
	t.Parallel()

	handler := graphQLHandler(t, func(_ graphQLCall, w http.ResponseWriter) {
		writeRaw(w, http.StatusOK, `{"data":{"repository":{"defaultBranchRef":{"target":{"history":{
			"pageInfo":{"hasNextPage":false,"endCursor":""},
			"nodes":[
				{"committedDate":"2025-02-17T10:00:00Z","additions":1,"deletions":0,"message":"a","author":{"name":"Mona","user":{"login":"octocat","avatarUrl":"https://a/1"}}},
				{"committedDate":"2025-02-17T09:00:00Z","additions":1,"deletions":0,"message":"b","author":{"name":"Local Dev","user":null}},
				{"committedDate":"2025-02-17T08:00:00Z","additions":1,"deletions":0,"message":"c","author":{"name":"","user":null}},
				{"committedDate":"2025-02-17T07:00:00Z","additions":1,"deletions":0,"message":"d","author":null}
			]}}}}}}`)
	})
	client := newTestClient(t, handler, testClientOptions{})

	commits, err := client.FetchCommitHistory(context.Background(), "octo", "mixed", nil)
	if err != nil {
		t.Fatalf("FetchCommitHistory() unexpected error: %v", err)
	}
	if len(commits) != 4 {
		t.Fatalf("len(commits) = %d, want 4", len(commits))
	}

	wantIdentity := []struct {
		value    string
		resolved bool
	}{
		{value: "octocat", resolved: true},
		{value: "Local Dev", resolved: true},
		{value: "", resolved: false},
		{value: "", resolved: false},
	}
	for i, want := range wantIdentity {
		value, resolved := commits[i].Author.Value()
		if value != want.value || resolved != want.resolved {
			t.Fatalf("commit[%d] identity = %q/%t, want %q/%t", i, value, resolved, want.value, want.resolved)
		}
	}
	if commits[0].AvatarURL != "https://a/1" {
		t.Fatalf("commit[0].AvatarURL = %q, want https://a/1", commits[0].AvatarURL)
	}
}

func TestFetchCommitHistoryRetries(t *testing.T) {
	t.Parallel()

	rateLimitedREST := func(w http.ResponseWriter) {
		writeRaw(w, http.StatusForbidden, `{"message":"API rate limit exceeded for 203.0.113.7."}`)
	}
	rateLimitedGraphQL := func(w http.ResponseWriter) {
		writeRaw(w, http.StatusOK, `{"data":null,"errors":[{"type":"RATE_LIMITED","message":"API rate limit exceeded"}]}`)
	}
	serverError := func(w http.ResponseWriter) {
		writeRaw(w, http.StatusInternalServerError, `{"message":"boom"}`)
	}
	success := func(w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, historyPage(commitNodes(2, 0), false, ""))
	}

	testCases := []struct {
		name          string
		responses     []func(http.ResponseWriter)
		wantCalls     int
		wantSleeps    []time.Duration
		wantCommits   int
		wantErr       bool
		wantExhausted bool
	}{
		{
			name:        "recovers_from_forbidden_rate_limit",
			responses:   []func(http.ResponseWriter){rateLimitedREST, success},
			wantCalls:   2,
			wantSleeps:  []time.Duration{time.Second},
			wantCommits: 2,
		},
		{
			name:          "exhausts_graphql_rate_limit",
			responses:     []func(http.ResponseWriter){rateLimitedGraphQL, rateLimitedGraphQL, rateLimitedGraphQL, success},
			wantCalls:     3,
			wantSleeps:    []time.Duration{time.Second, 2 * time.Second},
			wantErr:       true,
			wantExhausted: true,
		},
		{
			name:       "server_error_aborts",
			responses:  []func(http.ResponseWriter){serverError, success},
			wantCalls:  1,
			wantSleeps: nil,
			wantErr:    true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var mu sync.Mutex
			calls := 0
			handler := graphQLHandler(t, func(_ graphQLCall, w http.ResponseWriter) {
				mu.Lock()
				respond := tc.responses[calls]
				calls++
				mu.Unlock()
				respond(w)
			})
			observer := newRecordingObserver()
			client := newTestClient(t, handler, testClientOptions{observer: observer})

			commits, err := client.FetchCommitHistory(context.Background(), "octo", "busy", nil)
			if calls != tc.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tc.wantCalls)
			}
			if got := client.recordedSleeps(); !reflect.DeepEqual(got, tc.wantSleeps) {
				t.Fatalf("sleeps = %v, want %v", got, tc.wantSleeps)
			}
			if observer.retries[ClassRateLimited] != len(tc.wantSleeps) {
				t.Fatalf("observed rate-limit retries = %d, want %d", observer.retries[ClassRateLimited], len(tc.wantSleeps))
			}
			if tc.wantErr {
				if err == nil {
					t.Fatalf("FetchCommitHistory() expected error, got nil")
				}
				if got := errors.Is(err, ErrRateLimited); got != tc.wantExhausted {
					t.Fatalf("errors.Is(err, ErrRateLimited) = %t, want %t (err=%v)", got, tc.wantExhausted, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchCommitHistory() unexpected error: %v", err)
			}
			if len(commits) != tc.wantCommits {
				t.Fatalf("len(commits) = %d, want %d", len(commits), tc.wantCommits)
			}
		})
	}
}

func TestFetchCommitHistoryRepositoryStates(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		body         string
		wantNotFound bool
	}{
		{
			name: "empty_repository",
			body: `{"data":{"repository":{"defaultBranchRef":null}}}`,
		},
		{
			name:         "missing_repository",
			body:         `{"data":{"repository":null},"errors":[{"type":"NOT_FOUND","message":"Could not resolve to a Repository with the name 'octo/ghost'."}]}`,
			wantNotFound: true,
		},
		{
			name:         "null_repository_without_errors",
			body:         `{"data":{"repository":null}}`,
			wantNotFound: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := graphQLHandler(t, func(_ graphQLCall, w http.ResponseWriter) {
				writeRaw(w, http.StatusOK, tc.body)
			})
			client := newTestClient(t, handler, testClientOptions{})

			commits, err := client.FetchCommitHistory(context.Background(), "octo", "ghost", nil)
			if tc.wantNotFound {
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("FetchCommitHistory() error = %v, want ErrNotFound", err)
				}
				if len(client.recordedSleeps()) != 0 {
					t.Fatalf("not found retried, want immediate failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchCommitHistory() unexpected error: %v", err)
			}
			if len(commits) != 0 {
				t.Fatalf("len(commits) = %d, want 0", len(commits))
			}
		})
	}
}

func TestFetchCommitHistoryValidation(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.NotFoundHandler(), testClientOptions{})
	testCases := []struct {
		name  string
		owner string
		repo  string
		days  *int
	}{
		{name: "missing_owner", owner: " ", repo: "r"},
		{name: "missing_repo", owner: "o", repo: ""},
		{name: "zero_days", owner: "o", repo: "r", days: intPtr(0)},
	}
	for _, tc := range testCases {
		if _, err := client.FetchCommitHistory(context.Background(), tc.owner, tc.repo, tc.days); err == nil {
			t.Fatalf("FetchCommitHistory(%s) expected error, got nil", tc.name)
		}
	}
}
