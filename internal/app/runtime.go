package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cam3ron2/github-insights/internal/config"
	"github.com/cam3ron2/github-insights/internal/githubapi"
	"github.com/cam3ron2/github-insights/internal/health"
	"github.com/cam3ron2/github-insights/internal/metrics"
	"github.com/cam3ron2/github-insights/internal/model"
	"github.com/cam3ron2/github-insights/internal/service"
	"github.com/cam3ron2/github-insights/internal/store"
	"go.uber.org/zap"
)

const (
	// githubFailureThreshold is the number of consecutive failed probes
	// before GitHub is reported unreachable.
	githubFailureThreshold = 3
	defaultProbeInterval   = time.Minute
)

var errRateLimitProbe = errors.New("rate-limit probe failed")

type rateLimitProber interface {
	RefreshRateLimit(ctx context.Context) (info model.RateLimitInfo, ok bool)
}

// Runtime wires the store, clients, service, and health state of one process.
type Runtime struct {
	cfg       *config.Config
	store     store.RateLimitStore
	tracker   *githubapi.RateLimitTracker
	recorder  *metrics.Recorder
	service   *service.Service
	prober    rateLimitProber
	evaluator *health.StatusEvaluator
	logger    *zap.Logger

	mu              sync.RWMutex
	storeHealthy    bool
	githubReachable bool
	probeFailures   int
}

// NewRuntime creates a runtime instance.
func NewRuntime(cfg *config.Config, logger ...*zap.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}

	snapshotStore := newRateLimitStore(cfg, baseLogger)
	tracker := githubapi.NewRateLimitTracker(snapshotStore, baseLogger)
	recorder := metrics.NewRecorder(tracker)
	factory := service.NewClientFactory(service.FactoryConfigFromConfig(cfg), tracker, recorder, baseLogger)
	svc, err := service.New(factory, tracker, service.Options{
		Store:    snapshotStore,
		Recorder: recorder,
		Logger:   baseLogger,
	})
	if err != nil {
		_ = snapshotStore.Close()
		return nil, fmt.Errorf("create service: %w", err)
	}

	return &Runtime{
		cfg:             cfg,
		store:           snapshotStore,
		tracker:         tracker,
		recorder:        recorder,
		service:         svc,
		prober:          svc,
		evaluator:       health.NewStatusEvaluator(),
		logger:          baseLogger,
		storeHealthy:    true,
		githubReachable: true,
	}, nil
}

// Service exposes the analytics service.
func (r *Runtime) Service() *service.Service {
	return r.service
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler() http.Handler {
	apiHandler := NewAPIHandler(r.service, r.logger)
	healthHandler := health.NewHandler(r)
	return NewHTTPHandler(apiHandler, r.recorder.Handler(), healthHandler)
}

// Start runs the probe loop until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) {
	go r.runProbeLoop(ctx)
}

// RunProbeCycle pings the store and refreshes the unauthenticated budget once.
func (r *Runtime) RunProbeCycle(ctx context.Context) error {
	storeErr := r.store.Ping(ctx)
	info, ok := r.prober.RefreshRateLimit(ctx)

	r.mu.Lock()
	r.storeHealthy = storeErr == nil
	if ok {
		r.probeFailures = 0
		r.githubReachable = true
	} else {
		r.probeFailures++
		if r.probeFailures >= githubFailureThreshold {
			r.githubReachable = false
		}
	}
	failures := r.probeFailures
	r.mu.Unlock()

	var errs []error
	if storeErr != nil {
		errs = append(errs, fmt.Errorf("ping store: %w", storeErr))
	}
	if !ok {
		errs = append(errs, fmt.Errorf("%w (consecutive failures: %d)", errRateLimitProbe, failures))
	} else {
		r.logger.Debug("rate-limit probe completed", zap.Int("remaining", info.Remaining), zap.Int("limit", info.Limit))
	}
	return errors.Join(errs...)
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(_ context.Context) health.Status {
	info, known := r.tracker.Snapshot()
	r.mu.RLock()
	input := health.Input{
		StoreHealthy:       r.storeHealthy,
		GitHubReachable:    r.githubReachable,
		RateLimitKnown:     known,
		RateLimitRemaining: info.Remaining,
	}
	r.mu.RUnlock()
	return r.evaluator.Evaluate(input)
}

// Serve starts the probe loop and the HTTP server, and shuts both down when ctx ends.
func (r *Runtime) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              r.cfg.Server.ListenAddr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: r.cfg.Server.ReadHeaderTimeout,
	}

	probeCtx, cancelProbe := context.WithCancel(ctx)
	defer cancelProbe()
	r.Start(probeCtx)

	serverErrCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server starting", zap.String("addr", r.cfg.Server.ListenAddr))
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}
	cancelProbe()

	timeout := r.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	r.logger.Info("shutdown complete")
	return nil
}

// Close releases the snapshot store.
func (r *Runtime) Close() error {
	return r.store.Close()
}

func (r *Runtime) runProbeLoop(ctx context.Context) {
	interval := r.cfg.Health.GitHubProbeInterval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := r.RunProbeCycle(ctx); err != nil {
		r.logger.Warn("probe cycle finished with errors", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("probe loop stopped")
			return
		case <-ticker.C:
			if err := r.RunProbeCycle(ctx); err != nil {
				r.logger.Warn("probe cycle finished with errors", zap.Error(err))
			}
		}
	}
}
