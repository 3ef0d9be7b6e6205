package service

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/github-insights/internal/config"
	"github.com/cam3ron2/github-insights/internal/githubapi"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FactoryConfig configures the GitHub clients built by a ClientFactory.
type FactoryConfig struct {
	APIBaseURL         string
	GraphQLURL         string
	UserAgent          string
	RequestTimeout     time.Duration
	Retry              githubapi.RetryConfig
	MinRequestInterval time.Duration
	Burst              int
	// ServerCredential is used when a caller supplies no credential.
	ServerCredential githubapi.Credential
	BaseTransport    http.RoundTripper
}

// FactoryConfigFromConfig maps application config onto a FactoryConfig.
func FactoryConfigFromConfig(cfg *config.Config) FactoryConfig {
	if cfg == nil {
		cfg = config.Default()
	}
	factoryCfg := FactoryConfig{
		APIBaseURL:     cfg.GitHub.APIBaseURL,
		GraphQLURL:     cfg.GitHub.GraphQLURL,
		UserAgent:      cfg.GitHub.UserAgent,
		RequestTimeout: cfg.GitHub.RequestTimeout,
		Retry: githubapi.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
		},
		MinRequestInterval: cfg.RateLimit.MinRequestInterval,
		Burst:              cfg.RateLimit.Burst,
		ServerCredential:   githubapi.Credential{Token: cfg.GitHub.Token},
	}
	if app := cfg.GitHub.App; app != nil {
		factoryCfg.ServerCredential = githubapi.Credential{App: &githubapi.AppCredential{
			AppID:          app.AppID,
			InstallationID: app.InstallationID,
			PrivateKeyPath: app.PrivateKeyPath,
		}}
	}
	return factoryCfg
}

// ClientFactory builds GitHub clients per credential. The unauthenticated
// client and the server-credential client are built once and reused; the
// unauthenticated one is the only client wired to the rate-limit tracker.
type ClientFactory struct {
	cfg      FactoryConfig
	tracker  *githubapi.RateLimitTracker
	observer githubapi.Observer
	logger   *zap.Logger

	mu              sync.Mutex
	unauthenticated *githubapi.Client
	server          *githubapi.Client
}

// NewClientFactory creates a factory. tracker receives unauthenticated probe results.
func NewClientFactory(cfg FactoryConfig, tracker *githubapi.RateLimitTracker, observer githubapi.Observer, logger ...*zap.Logger) *ClientFactory {
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}
	return &ClientFactory{
		cfg:      cfg,
		tracker:  tracker,
		observer: observer,
		logger:   baseLogger,
	}
}

// ForCredential returns a source for cred, falling back to the server
// credential and then to unauthenticated access.
func (f *ClientFactory) ForCredential(cred githubapi.Credential) (Source, error) {
	if cred.Authenticated() {
		client, err := f.newClient(cred)
		if err != nil {
			return nil, fmt.Errorf("create client for request credential: %w", err)
		}
		return client, nil
	}
	if f.cfg.ServerCredential.Authenticated() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.server == nil {
			client, err := f.newClient(f.cfg.ServerCredential)
			if err != nil {
				return nil, fmt.Errorf("create server credential client: %w", err)
			}
			f.server = client
		}
		return f.server, nil
	}
	client, err := f.Unauthenticated()
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Unauthenticated returns the shared unauthenticated client.
func (f *ClientFactory) Unauthenticated() (*githubapi.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unauthenticated == nil {
		client, err := f.newClient(githubapi.Credential{})
		if err != nil {
			return nil, fmt.Errorf("create unauthenticated client: %w", err)
		}
		f.unauthenticated = client
	}
	return f.unauthenticated, nil
}

func (f *ClientFactory) newClient(cred githubapi.Credential) (*githubapi.Client, error) {
	timeout := f.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	httpClient, err := githubapi.NewHTTPClient(cred, githubapi.TransportConfig{
		UserAgent:     f.cfg.UserAgent,
		Timeout:       timeout,
		BaseTransport: f.cfg.BaseTransport,
		Limiter:       newLimiter(f.cfg.MinRequestInterval, f.cfg.Burst),
	})
	if err != nil {
		return nil, err
	}

	clientCfg := githubapi.ClientConfig{
		APIBaseURL:    f.cfg.APIBaseURL,
		GraphQLURL:    f.cfg.GraphQLURL,
		UserAgent:     strings.TrimSpace(f.cfg.UserAgent),
		Authenticated: cred.Authenticated(),
		Retry:         f.cfg.Retry,
		Observer:      f.observer,
		Logger:        f.logger,
	}
	if !cred.Authenticated() {
		clientCfg.Tracker = f.tracker
	}
	return githubapi.NewClient(httpClient, clientCfg)
}

// newLimiter paces one request per interval. A zero interval disables pacing.
func newLimiter(interval time.Duration, burst int) *rate.Limiter {
	if interval <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(interval), burst)
}
