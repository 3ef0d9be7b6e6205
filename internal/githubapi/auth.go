package githubapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "github-insights/1.0"
	defaultAccept    = "application/vnd.github+json"
)

// AppCredential identifies one GitHub App installation.
type AppCredential struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
}

// Credential is an optional access credential. The zero value is unauthenticated.
type Credential struct {
	Token string
	App   *AppCredential
}

// Authenticated reports whether requests carry a credential.
func (c Credential) Authenticated() bool {
	return strings.TrimSpace(c.Token) != "" || c.App != nil
}

// TransportConfig configures the HTTP client shared by GraphQL and REST calls.
type TransportConfig struct {
	UserAgent     string
	Timeout       time.Duration
	BaseTransport http.RoundTripper
	// Limiter paces every outbound request. Nil disables pacing.
	Limiter *rate.Limiter
}

// NewHTTPClient builds an HTTP client that applies the header contract and pacing.
func NewHTTPClient(cred Credential, cfg TransportConfig) (*http.Client, error) {
	baseTransport := cfg.BaseTransport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	if cred.App != nil {
		appTransport, err := newInstallationTransport(baseTransport, *cred.App)
		if err != nil {
			return nil, err
		}
		baseTransport = appTransport
	}

	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &http.Client{
		Transport: &headerTransport{
			base:      baseTransport,
			token:     strings.TrimSpace(cred.Token),
			userAgent: userAgent,
			limiter:   cfg.Limiter,
		},
		Timeout: cfg.Timeout,
	}, nil
}

func newInstallationTransport(base http.RoundTripper, app AppCredential) (http.RoundTripper, error) {
	if app.AppID <= 0 {
		return nil, fmt.Errorf("app id must be > 0")
	}
	if app.InstallationID <= 0 {
		return nil, fmt.Errorf("installation id must be > 0")
	}
	if strings.TrimSpace(app.PrivateKeyPath) == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	transport, err := ghinstallation.NewKeyFromFile(base, app.AppID, app.InstallationID, app.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("create github app transport: %w", err)
	}
	return transport, nil
}

type headerTransport struct {
	base      http.RoundTripper
	token     string
	userAgent string
	limiter   *rate.Limiter
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("wait for request pacing: %w", err)
		}
	}

	next := req.Clone(req.Context())
	if next.Header.Get("Accept") == "" {
		next.Header.Set("Accept", defaultAccept)
	}
	next.Header.Set("User-Agent", t.userAgent)
	if t.token != "" {
		next.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(next)
}

// newRESTClient creates a go-github client with optional API base URL override.
func newRESTClient(httpClient *http.Client, apiBaseURL *url.URL, userAgent string) *github.Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	client := github.NewClient(httpClient)
	if strings.TrimSpace(userAgent) != "" {
		client.UserAgent = userAgent
	}
	if apiBaseURL != nil {
		cloned := *apiBaseURL
		client.BaseURL = &cloned
	}
	return client
}

func parseAPIBaseURL(raw, fallback string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = fallback
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github url: missing scheme or host")
	}
	return parsed, nil
}
