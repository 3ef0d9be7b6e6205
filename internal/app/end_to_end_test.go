package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cam3ron2/github-insights/internal/config"
)

// fakeGitHubGraphQL serves commit history and pull requests for one repository.
type fakeGitHubGraphQL struct {
	mu        sync.Mutex
	authSeen  []string
	knownRepo string
}

func (f *fakeGitHubGraphQL) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/graphql" {
		http.NotFound(w, r)
		return
	}
	var request struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	name, _ := request.Variables["name"].(string)
	if name != f.knownRepo {
		_, _ = w.Write([]byte(`{"data":{"repository":null}}`))
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	switch {
	case strings.Contains(request.Query, "history("):
		_, _ = w.Write([]byte(`{"data":{"repository":{"defaultBranchRef":{"target":{"history":{
  "pageInfo":{"hasNextPage":false,"endCursor":""},
  "nodes":[
    {"committedDate":"` + now + `","additions":0,"deletions":0,"message":"one","author":{"name":"Alice","user":{"login":"alice"}}},
    {"committedDate":"` + now + `","additions":0,"deletions":0,"message":"two","author":{"name":"Alice","user":{"login":"alice"}}},
    {"committedDate":"` + now + `","additions":0,"deletions":0,"message":"three","author":{"name":"Bob","user":{"login":"bob"}}}
  ]}}}}}}`))
	case strings.Contains(request.Query, "pullRequests("):
		_, _ = w.Write([]byte(`{"data":{"repository":{"pullRequests":{
  "pageInfo":{"hasNextPage":false,"endCursor":""},
  "nodes":[
    {"number":1,"createdAt":"` + now + `","author":{"login":"alice"},
     "reviews":{"nodes":[{"state":"APPROVED","submittedAt":"` + now + `","author":{"login":"bob"}}]}}
  ]}}}}`))
	default:
		http.Error(w, "unexpected query", http.StatusBadRequest)
	}
}

func (f *fakeGitHubGraphQL) authorizations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authSeen...)
}

func TestEndToEndContributors(t *testing.T) {
	t.Parallel()

	fixture := &fakeGitHubGraphQL{knownRepo: "hello"}
	server := httptest.NewServer(fixture)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.GitHub.APIBaseURL = server.URL + "/"
	cfg.GitHub.GraphQLURL = server.URL + "/graphql"
	cfg.RateLimit.MinRequestInterval = 0
	cfg.Retry.MaxAttempts = 1
	runtime, err := NewRuntime(cfg)
	if err != nil {
		t.Fatalf("NewRuntime() unexpected error: %v", err)
	}
	handler := runtime.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/repos/octo/hello/contributors", nil)
	req.Header.Set("Authorization", "Bearer ghp_caller")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var payload struct {
		Authenticated bool `json:"authenticated"`
		Summary       struct {
			Contributors int    `json:"contributors"`
			Commits      int    `json:"commits"`
			Top          string `json:"top"`
		} `json:"summary"`
		Contributors []struct {
			Identity string `json:"identity"`
			Score    int    `json:"score"`
			Rank     int    `json:"rank"`
		} `json:"contributors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode contributors: %v", err)
	}
	if !payload.Authenticated {
		t.Fatalf("authenticated = false, want true for a caller token")
	}
	if payload.Summary.Contributors != 2 || payload.Summary.Commits != 3 || payload.Summary.Top != "alice" {
		t.Fatalf("summary = %+v, want 2 contributors, 3 commits, top alice", payload.Summary)
	}
	want := []struct {
		identity string
		score    int
		rank     int
	}{
		{identity: "alice", score: 40, rank: 1},
		{identity: "bob", score: 15, rank: 2},
	}
	if len(payload.Contributors) != len(want) {
		t.Fatalf("contributors = %+v, want %d entries", payload.Contributors, len(want))
	}
	for i, w := range want {
		got := payload.Contributors[i]
		if got.Identity != w.identity || got.Score != w.score || got.Rank != w.rank {
			t.Fatalf("contributors[%d] = %+v, want %+v", i, got, w)
		}
	}

	for _, auth := range fixture.authorizations() {
		if auth != "Bearer ghp_caller" {
			t.Fatalf("Authorization = %q, want the caller token", auth)
		}
	}

	missing := httptest.NewRecorder()
	handler.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/repos/octo/missing/commits", nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("missing repo status = %d, want %d (body %q)", missing.Code, http.StatusNotFound, missing.Body.String())
	}
}
