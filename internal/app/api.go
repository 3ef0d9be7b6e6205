package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/cam3ron2/github-insights/internal/githubapi"
	"github.com/cam3ron2/github-insights/internal/model"
	"github.com/cam3ron2/github-insights/internal/service"
	"github.com/cam3ron2/github-insights/internal/telemetry"
	"github.com/cam3ron2/github-insights/internal/temporal"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Analytics is the operation surface served by the API.
type Analytics interface {
	CommitHistory(ctx context.Context, cred githubapi.Credential, owner, repo string, days *int) ([]model.CommitRecord, error)
	Contributors(ctx context.Context, cred githubapi.Credential, owner, repo string, days *int) (service.RepoContributors, error)
	Streaks(ctx context.Context, cred githubapi.Credential, username string, year int) (service.StreakReport, error)
	ActivityTime(ctx context.Context, cred githubapi.Credential, username string) (temporal.ActivityTimeAnalysis, error)
	InsightScore(ctx context.Context, cred githubapi.Credential, username string) (service.InsightReport, error)
	Badges(ctx context.Context, cred githubapi.Credential, username string, year int) (service.UserBadges, error)
	RateLimit(ctx context.Context) (model.RateLimitInfo, bool, error)
}

type apiHandler struct {
	analytics Analytics
	logger    *zap.Logger
}

type errorPayload struct {
	Error string `json:"error"`
}

// NewAPIHandler routes the analytics operations under chi.
func NewAPIHandler(analytics Analytics, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &apiHandler{analytics: analytics, logger: logger}
	traceMode := telemetry.TraceMode()

	router := chi.NewRouter()
	router.Method(http.MethodGet, "/repos/{owner}/{repo}/commits", wrapHTTPHandler(traceMode, "commits", http.HandlerFunc(h.commits)))
	router.Method(http.MethodGet, "/repos/{owner}/{repo}/contributors", wrapHTTPHandler(traceMode, "contributors", http.HandlerFunc(h.contributors)))
	router.Method(http.MethodGet, "/users/{username}/streaks", wrapHTTPHandler(traceMode, "streaks", http.HandlerFunc(h.streaks)))
	router.Method(http.MethodGet, "/users/{username}/activity", wrapHTTPHandler(traceMode, "activity", http.HandlerFunc(h.activity)))
	router.Method(http.MethodGet, "/users/{username}/insight", wrapHTTPHandler(traceMode, "insight", http.HandlerFunc(h.insight)))
	router.Method(http.MethodGet, "/users/{username}/badges", wrapHTTPHandler(traceMode, "badges", http.HandlerFunc(h.badges)))
	router.Method(http.MethodGet, "/rate-limit", wrapHTTPHandler(traceMode, "rate_limit", http.HandlerFunc(h.rateLimit)))
	return router
}

func (h *apiHandler) commits(w http.ResponseWriter, r *http.Request) {
	days, err := optionalPositiveInt(r, "days")
	if err != nil {
		h.writeError(w, err)
		return
	}
	commits, err := h.analytics.CommitHistory(r.Context(), credentialFromRequest(r), chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, commits)
}

func (h *apiHandler) contributors(w http.ResponseWriter, r *http.Request) {
	days, err := optionalPositiveInt(r, "days")
	if err != nil {
		h.writeError(w, err)
		return
	}
	report, err := h.analytics.Contributors(r.Context(), credentialFromRequest(r), chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *apiHandler) streaks(w http.ResponseWriter, r *http.Request) {
	year, err := optionalYear(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	report, err := h.analytics.Streaks(r.Context(), credentialFromRequest(r), chi.URLParam(r, "username"), year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *apiHandler) activity(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.analytics.ActivityTime(r.Context(), credentialFromRequest(r), chi.URLParam(r, "username"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, analysis)
}

func (h *apiHandler) insight(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.InsightScore(r.Context(), credentialFromRequest(r), chi.URLParam(r, "username"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *apiHandler) badges(w http.ResponseWriter, r *http.Request) {
	year, err := optionalYear(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.analytics.Badges(r.Context(), credentialFromRequest(r), chi.URLParam(r, "username"), year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *apiHandler) rateLimit(w http.ResponseWriter, r *http.Request) {
	info, found, err := h.analytics.RateLimit(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		h.writeJSON(w, http.StatusOK, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:gosec // Response payload is server-generated JSON.
	if _, err := w.Write(body); err != nil {
		return
	}
}

func (h *apiHandler) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if wait, ok := githubapi.RetryAfter(err); ok && status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Warn("analytics request failed", zap.Int("status", status), zap.Error(err))
	}
	h.writeJSON(w, status, errorPayload{Error: err.Error()})
}

// statusForError maps operation failures onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case githubapi.IsRateLimited(err):
		return http.StatusTooManyRequests
	case errors.Is(err, githubapi.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// credentialFromRequest passes a caller's bearer or token credential through.
func credentialFromRequest(r *http.Request) githubapi.Credential {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok {
		return githubapi.Credential{}
	}
	if !strings.EqualFold(scheme, "bearer") && !strings.EqualFold(scheme, "token") {
		return githubapi.Credential{}
	}
	return githubapi.Credential{Token: strings.TrimSpace(token)}
}

func optionalPositiveInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return nil, fmt.Errorf("%w: %s must be a positive integer", service.ErrInvalidInput, name)
	}
	return &value, nil
}

func optionalYear(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("year"))
	if raw == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: year must be an integer", service.ErrInvalidInput)
	}
	return year, nil
}
