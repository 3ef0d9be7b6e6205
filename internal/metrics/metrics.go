// Package metrics exposes Prometheus instrumentation for GitHub calls,
// analytics operations and the shared rate-limit snapshot.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cam3ron2/github-insights/internal/githubapi"
	"github.com/cam3ron2/github-insights/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gh_insights"

// SnapshotReader reads the unauthenticated rate-limit snapshot at scrape time.
type SnapshotReader interface {
	Snapshot() (model.RateLimitInfo, bool)
}

// Recorder implements githubapi.Observer and records analytics operations.
type Recorder struct {
	registry          *prometheus.Registry
	requests          *prometheus.CounterVec
	retries           *prometheus.CounterVec
	observedRemaining *prometheus.GaugeVec
	operations        *prometheus.CounterVec
	operationSeconds  *prometheus.HistogramVec
}

// NewRecorder registers all collectors on a private registry. snapshots may be nil.
func NewRecorder(snapshots SnapshotReader) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_requests_total",
			Help:      "GitHub API calls by endpoint and HTTP status (0 for transport failures).",
		}, []string{"endpoint", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_retries_total",
			Help:      "GitHub API backoffs by endpoint and failure class.",
		}, []string{"endpoint", "class"}),
		observedRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "github_rate_limit_observed_remaining",
			Help:      "Remaining budget from the most recent rate-limit response headers.",
		}, []string{"resource"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Analytics operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		operationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Analytics operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"operation"}),
	}

	r.registry.MustRegister(r.requests, r.retries, r.observedRemaining, r.operations, r.operationSeconds)
	if snapshots != nil {
		r.registry.MustRegister(&snapshotCollector{reader: snapshots})
	}
	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler renders the registry in Prometheus or OpenMetrics text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveRequest counts one GitHub call.
func (r *Recorder) ObserveRequest(endpoint string, statusCode int, _ error) {
	r.requests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// ObserveRetry counts one backoff.
func (r *Recorder) ObserveRetry(endpoint string, class githubapi.Class) {
	r.retries.WithLabelValues(endpoint, string(class)).Inc()
}

// ObserveRateLimit records the remaining budget reported by response headers.
func (r *Recorder) ObserveRateLimit(info model.RateLimitInfo) {
	resource := info.Resource
	if resource == "" {
		resource = "unknown"
	}
	r.observedRemaining.WithLabelValues(resource).Set(float64(info.Remaining))
}

// ObserveOperation records the outcome and latency of an analytics operation.
func (r *Recorder) ObserveOperation(operation string, duration time.Duration, err error) {
	r.operations.WithLabelValues(operation, Outcome(err)).Inc()
	r.operationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// Outcome maps an operation error onto a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case githubapi.IsRateLimited(err):
		return "rate_limited"
	case errors.Is(err, githubapi.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

var (
	remainingDesc = prometheus.NewDesc(
		namespace+"_unauthenticated_rate_limit_remaining",
		"Remaining unauthenticated budget from the last rate-limit probe.",
		nil, nil,
	)
	limitDesc = prometheus.NewDesc(
		namespace+"_unauthenticated_rate_limit_limit",
		"Unauthenticated budget ceiling from the last rate-limit probe.",
		nil, nil,
	)
	resetDesc = prometheus.NewDesc(
		namespace+"_unauthenticated_rate_limit_reset_timestamp_seconds",
		"Unix time at which the unauthenticated budget resets.",
		nil, nil,
	)
)

type snapshotCollector struct {
	reader SnapshotReader
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- remainingDesc
	ch <- limitDesc
	ch <- resetDesc
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.reader == nil {
		return
	}
	info, ok := c.reader.Snapshot()
	if !ok {
		return
	}
	ch <- prometheus.MustNewConstMetric(remainingDesc, prometheus.GaugeValue, float64(info.Remaining))
	ch <- prometheus.MustNewConstMetric(limitDesc, prometheus.GaugeValue, float64(info.Limit))
	if !info.ResetAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(resetDesc, prometheus.GaugeValue, float64(info.ResetAt.Unix()))
	}
}
