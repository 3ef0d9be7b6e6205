// Package health evaluates dependency state into liveness, readiness, and mode.
package health

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"strings"
)

// Mode indicates high-level health mode.
type Mode string

const (
	// ModeHealthy indicates all dependencies are healthy.
	ModeHealthy Mode = "healthy"
	// ModeDegraded indicates the app serves requests but GitHub calls are likely to fail.
	ModeDegraded Mode = "degraded"
	// ModeUnhealthy indicates a required dependency is unhealthy.
	ModeUnhealthy Mode = "unhealthy"
)

// Input represents dependency states used for health evaluation.
type Input struct {
	StoreHealthy bool
	// GitHubReachable is false once rate-limit probes keep failing.
	GitHubReachable bool
	// RateLimitKnown is false until the first successful probe.
	RateLimitKnown     bool
	RateLimitRemaining int
}

// Status represents evaluated application health.
type Status struct {
	Mode       Mode            `json:"mode"`
	Ready      bool            `json:"ready"`
	Components map[string]bool `json:"components"`
	// RateLimitRemaining is the unauthenticated budget, when known.
	RateLimitRemaining *int `json:"rate_limit_remaining,omitempty"`
}

// Provider supplies current health status.
type Provider interface {
	CurrentStatus(ctx context.Context) Status
}

// StatusEvaluator evaluates health and readiness.
type StatusEvaluator struct{}

// NewStatusEvaluator creates a health evaluator.
func NewStatusEvaluator() *StatusEvaluator {
	return &StatusEvaluator{}
}

// Evaluate evaluates readiness and mode from dependency state. Only the
// snapshot store gates readiness; GitHub trouble degrades the mode.
func (e *StatusEvaluator) Evaluate(input Input) Status {
	budgetLeft := !input.RateLimitKnown || input.RateLimitRemaining > 0
	components := map[string]bool{
		"store":                  input.StoreHealthy,
		"github":                 input.GitHubReachable,
		"unauthenticated_budget": budgetLeft,
	}

	status := Status{
		Mode:       ModeHealthy,
		Ready:      input.StoreHealthy,
		Components: components,
	}
	if input.RateLimitKnown {
		remaining := input.RateLimitRemaining
		status.RateLimitRemaining = &remaining
	}

	switch {
	case !status.Ready:
		status.Mode = ModeUnhealthy
	case !input.GitHubReachable || !budgetLeft:
		status.Mode = ModeDegraded
	}
	return status
}

// Unhealthy lists the components reporting false, sorted by name.
func (s Status) Unhealthy() []string {
	var failing []string
	for _, name := range slices.Sorted(maps.Keys(s.Components)) {
		if !s.Components[name] {
			failing = append(failing, name)
		}
	}
	return failing
}

// NewHandler serves /livez, /readyz, and /healthz from provider. /healthz
// answers 503 only when the mode is unhealthy so degraded pods stay routable.
func NewHandler(provider Provider) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		if status.Ready {
			writeText(w, http.StatusOK, "ready")
			return
		}
		writeText(w, http.StatusServiceUnavailable, "not ready: "+strings.Join(status.Unhealthy(), ","))
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		code := http.StatusOK
		if status.Mode == ModeUnhealthy {
			code = http.StatusServiceUnavailable
		}
		payload, err := json.Marshal(status)
		if err != nil {
			writeText(w, http.StatusInternalServerError, "marshal health status")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write(payload)
	})
	return mux
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
