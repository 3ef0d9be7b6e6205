package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validStoreBackends = []string{"memory", "redis"}
	validTraceModes    = []string{"off", "errors", "sampled", "detailed"}
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitHub    GitHubConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Store     StoreConfig
	Health    HealthConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr        string
	LogLevel          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// GitHubConfig configures GitHub API interactions.
type GitHubConfig struct {
	APIBaseURL     string
	GraphQLURL     string
	UserAgent      string
	RequestTimeout time.Duration
	// Token is the default server credential. GITHUB_TOKEN overrides it.
	Token string
	App   *GitHubAppConfig
}

// GitHubAppConfig identifies a GitHub App installation used as the server credential.
type GitHubAppConfig struct {
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// RateLimitConfig configures outbound request pacing.
type RateLimitConfig struct {
	MinRequestInterval time.Duration
	Burst              int
}

// RetryConfig configures retries of rate-limited GitHub calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// StoreConfig configures the shared rate-limit snapshot store.
type StoreConfig struct {
	Backend            string
	RedisMode          string
	RedisAddr          string
	RedisMasterSet     string
	RedisSentinelAddrs []string
	RedisPassword      string
	RedisDB            int
	Namespace          string
	SnapshotTTL        time.Duration
}

// HealthConfig configures health probe behavior.
type HealthConfig struct {
	GitHubProbeInterval time.Duration
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		errs = append(errs, "server.listen_addr is required")
	}

	for name, raw := range map[string]string{
		"github.api_base_url": c.GitHub.APIBaseURL,
		"github.graphql_url":  c.GitHub.GraphQLURL,
	} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, name+" must be an absolute URL")
		}
	}
	if c.GitHub.RequestTimeout <= 0 {
		errs = append(errs, "github.request_timeout must be > 0")
	}
	if app := c.GitHub.App; app != nil {
		if app.AppID <= 0 {
			errs = append(errs, "github.app.app_id must be > 0")
		}
		if app.InstallationID <= 0 {
			errs = append(errs, "github.app.installation_id must be > 0")
		}
		if strings.TrimSpace(app.PrivateKeyPath) == "" {
			errs = append(errs, "github.app.private_key_path is required")
		}
		if strings.TrimSpace(c.GitHub.Token) != "" {
			errs = append(errs, "github.token and github.app are mutually exclusive")
		}
	}

	if c.RateLimit.MinRequestInterval < 0 {
		errs = append(errs, "rate_limit.min_request_interval must be >= 0")
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, "rate_limit.burst must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry.max_attempts must be > 0")
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, "retry.base_delay must be > 0")
	}

	if !slices.Contains(validStoreBackends, c.Store.Backend) {
		errs = append(errs, "store.backend must be memory or redis")
	}
	if c.Store.Backend == "redis" {
		if c.Store.RedisMode != "standalone" && c.Store.RedisMode != "sentinel" {
			errs = append(errs, "store.redis_mode must be standalone or sentinel")
		}
		if c.Store.RedisMode == "standalone" && strings.TrimSpace(c.Store.RedisAddr) == "" {
			errs = append(errs, "store.redis_addr is required when store.redis_mode=standalone")
		}
		if c.Store.RedisMode == "sentinel" && len(c.Store.RedisSentinelAddrs) == 0 {
			errs = append(errs, "store.redis_sentinel_addrs is required when store.redis_mode=sentinel")
		}
	}
	if c.Store.SnapshotTTL <= 0 {
		errs = append(errs, "store.snapshot_ttl must be > 0")
	}

	if c.Health.GitHubProbeInterval <= 0 {
		errs = append(errs, "health.github_probe_interval must be > 0")
	}

	if !slices.Contains(validTraceModes, c.Telemetry.OTELTraceMode) {
		errs = append(errs, "telemetry.otel_trace_mode must be one of off|errors|sampled|detailed")
	}
	if c.Telemetry.OTELTraceSampleRatio < 0 || c.Telemetry.OTELTraceSampleRatio > 1 {
		errs = append(errs, "telemetry.otel_trace_sample_ratio must be within [0,1]")
	}

	if len(errs) > 0 {
		slices.Sort(errs)
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ApplyEnv overrides configuration from environment lookups.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	if token, ok := lookup("GITHUB_TOKEN"); ok && strings.TrimSpace(token) != "" {
		c.GitHub.Token = strings.TrimSpace(token)
		c.GitHub.App = nil
	}
	if level, ok := lookup("LOG_LEVEL"); ok && strings.TrimSpace(level) != "" {
		c.Server.LogLevel = strings.ToLower(strings.TrimSpace(level))
	}
	if addr, ok := lookup("REDIS_ADDR"); ok && strings.TrimSpace(addr) != "" {
		c.Store.Backend = "redis"
		c.Store.RedisAddr = strings.TrimSpace(addr)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com/"
	}
	if cfg.GitHub.GraphQLURL == "" {
		cfg.GitHub.GraphQLURL = "https://api.github.com/graphql"
	}
	if cfg.GitHub.UserAgent == "" {
		cfg.GitHub.UserAgent = "github-insights/1.0"
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 20 * time.Second
	}
	if cfg.RateLimit.MinRequestInterval == 0 {
		cfg.RateLimit.MinRequestInterval = 100 * time.Millisecond
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 1
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = time.Second
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.RedisMode == "" {
		cfg.Store.RedisMode = "standalone"
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = "github-insights"
	}
	if cfg.Store.SnapshotTTL == 0 {
		cfg.Store.SnapshotTTL = time.Hour
	}
	if cfg.Health.GitHubProbeInterval == 0 {
		cfg.Health.GitHubProbeInterval = time.Minute
	}
	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "off"
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    rawServer    `yaml:"server"`
	GitHub    rawGitHub    `yaml:"github"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Retry     rawRetry     `yaml:"retry"`
	Store     rawStore     `yaml:"store"`
	Health    rawHealth    `yaml:"health"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawServer struct {
	ListenAddr        string   `yaml:"listen_addr"`
	LogLevel          string   `yaml:"log_level"`
	ReadHeaderTimeout duration `yaml:"read_header_timeout"`
	ShutdownTimeout   duration `yaml:"shutdown_timeout"`
}

type rawGitHub struct {
	APIBaseURL     string           `yaml:"api_base_url"`
	GraphQLURL     string           `yaml:"graphql_url"`
	UserAgent      string           `yaml:"user_agent"`
	RequestTimeout duration         `yaml:"request_timeout"`
	Token          string           `yaml:"token"`
	App            *GitHubAppConfig `yaml:"app"`
}

type rawRateLimit struct {
	MinRequestInterval duration `yaml:"min_request_interval"`
	Burst              int      `yaml:"burst"`
}

type rawRetry struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   duration `yaml:"base_delay"`
}

type rawStore struct {
	Backend            string   `yaml:"backend"`
	RedisMode          string   `yaml:"redis_mode"`
	RedisAddr          string   `yaml:"redis_addr"`
	RedisMasterSet     string   `yaml:"redis_master_set"`
	RedisSentinelAddrs []string `yaml:"redis_sentinel_addrs"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisDB            int      `yaml:"redis_db"`
	Namespace          string   `yaml:"namespace"`
	SnapshotTTL        duration `yaml:"snapshot_ttl"`
}

type rawHealth struct {
	GitHubProbeInterval duration `yaml:"github_probe_interval"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:        r.Server.ListenAddr,
			LogLevel:          strings.ToLower(strings.TrimSpace(r.Server.LogLevel)),
			ReadHeaderTimeout: r.Server.ReadHeaderTimeout.Duration,
			ShutdownTimeout:   r.Server.ShutdownTimeout.Duration,
		},
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			GraphQLURL:     r.GitHub.GraphQLURL,
			UserAgent:      r.GitHub.UserAgent,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
			Token:          strings.TrimSpace(r.GitHub.Token),
			App:            r.GitHub.App,
		},
		RateLimit: RateLimitConfig{
			MinRequestInterval: r.RateLimit.MinRequestInterval.Duration,
			Burst:              r.RateLimit.Burst,
		},
		Retry: RetryConfig{
			MaxAttempts: r.Retry.MaxAttempts,
			BaseDelay:   r.Retry.BaseDelay.Duration,
		},
		Store: StoreConfig{
			Backend:            r.Store.Backend,
			RedisMode:          r.Store.RedisMode,
			RedisAddr:          r.Store.RedisAddr,
			RedisMasterSet:     r.Store.RedisMasterSet,
			RedisSentinelAddrs: r.Store.RedisSentinelAddrs,
			RedisPassword:      r.Store.RedisPassword,
			RedisDB:            r.Store.RedisDB,
			Namespace:          r.Store.Namespace,
			SnapshotTTL:        r.Store.SnapshotTTL.Duration,
		},
		Health: HealthConfig{
			GitHubProbeInterval: r.Health.GitHubProbeInterval.Duration,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
	return cfg
}
