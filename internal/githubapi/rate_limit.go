package githubapi

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cam3ron2/github-insights/internal/model"
	"go.uber.org/zap"
)

// RateLimitHeaders contains parsed GitHub rate-limit response headers.
type RateLimitHeaders struct {
	Limit      int
	Remaining  int
	ResetUnix  int64
	Used       int
	Resource   string
	RetryAfter time.Duration
	// Present is false when the response carried no rate-limit headers.
	Present bool
}

// ParseRateLimitHeaders parses rate-limit and retry headers.
func ParseRateLimitHeaders(header http.Header) RateLimitHeaders {
	parsed := RateLimitHeaders{}
	if header == nil {
		return parsed
	}
	parsed.Present = header.Get("X-RateLimit-Remaining") != "" && header.Get("X-RateLimit-Reset") != ""
	parsed.Limit = parseInt(header.Get("X-RateLimit-Limit"))
	parsed.Remaining = parseInt(header.Get("X-RateLimit-Remaining"))
	parsed.Used = parseInt(header.Get("X-RateLimit-Used"))
	parsed.ResetUnix = parseInt64(header.Get("X-RateLimit-Reset"))
	parsed.Resource = header.Get("X-RateLimit-Resource")

	retryAfterSeconds := parseInt(header.Get("Retry-After"))
	if retryAfterSeconds > 0 {
		parsed.RetryAfter = time.Duration(retryAfterSeconds) * time.Second
	}
	return parsed
}

// Info converts parsed headers into a snapshot observed at now.
func (h RateLimitHeaders) Info(now time.Time) model.RateLimitInfo {
	info := model.RateLimitInfo{
		Limit:      h.Limit,
		Remaining:  h.Remaining,
		Used:       h.Used,
		Resource:   h.Resource,
		ObservedAt: now.UTC(),
	}
	if h.ResetUnix > 0 {
		info.ResetAt = time.Unix(h.ResetUnix, 0).UTC()
	}
	return info
}

// SnapshotMirror persists the unauthenticated snapshot outside the process.
type SnapshotMirror interface {
	SaveRateLimit(ctx context.Context, info model.RateLimitInfo) error
}

// RateLimitTracker holds the process-wide unauthenticated rate-limit snapshot.
// Create one per process and hand it to every unauthenticated client.
// Authenticated clients never receive a tracker.
type RateLimitTracker struct {
	mu     sync.RWMutex
	info   model.RateLimitInfo
	known  bool
	mirror SnapshotMirror
	logger *zap.Logger
}

// NewRateLimitTracker creates a tracker with an optional mirror.
func NewRateLimitTracker(mirror SnapshotMirror, logger ...*zap.Logger) *RateLimitTracker {
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}
	return &RateLimitTracker{
		mirror: mirror,
		logger: baseLogger,
	}
}

// Update overwrites the snapshot. The last writer wins.
func (t *RateLimitTracker) Update(ctx context.Context, info model.RateLimitInfo) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.info = info
	t.known = true
	t.mu.Unlock()

	if t.mirror == nil {
		return
	}
	if err := t.mirror.SaveRateLimit(ctx, info); err != nil {
		t.logger.Warn("failed to mirror rate-limit snapshot", zap.Error(err))
	}
}

// Snapshot returns the latest snapshot and whether one was recorded.
func (t *RateLimitTracker) Snapshot() (model.RateLimitInfo, bool) {
	if t == nil {
		return model.RateLimitInfo{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info, t.known
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
