package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cam3ron2/github-insights/internal/model"
	"github.com/cam3ron2/github-insights/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "github-insights/internal/store"

type redisCommander interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStoreConfig configures the Redis-backed snapshot store.
type RedisStoreConfig struct {
	Namespace string
	TTL       time.Duration
}

// RedisStore shares the snapshot across replicas through one Redis hash.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	namespace string
	ttl       time.Duration
}

// NewRedisStore creates a Redis-backed snapshot store.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisStoreFromCommander(client, closeFn, cfg)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, cfg RedisStoreConfig) *RedisStore {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "github-insights"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
		ttl:       cfg.TTL,
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) (err error) {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	ctx, span := telemetry.StartDependencySpan(ctx, tracerName, "redis.ping")
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// SaveRateLimit writes the snapshot hash and refreshes its ttl.
func (s *RedisStore) SaveRateLimit(ctx context.Context, info model.RateLimitInfo) (err error) {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	ctx, span := telemetry.StartDependencySpan(ctx, tracerName, "redis.save_rate_limit",
		attribute.Int("github.rate_limit_remaining", info.Remaining),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	fields := map[string]any{
		"limit":       strconv.Itoa(info.Limit),
		"remaining":   strconv.Itoa(info.Remaining),
		"used":        strconv.Itoa(info.Used),
		"reset_at":    strconv.FormatInt(info.ResetAt.Unix(), 10),
		"resource":    info.Resource,
		"observed_at": strconv.FormatInt(info.ObservedAt.UnixNano(), 10),
	}
	key := s.rateLimitKey()
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("write rate-limit hash: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("set rate-limit ttl: %w", err)
		}
	}
	return nil
}

// LoadRateLimit reads the snapshot hash. A missing or malformed hash is not found.
func (s *RedisStore) LoadRateLimit(ctx context.Context) (info model.RateLimitInfo, found bool, err error) {
	if s == nil || s.client == nil {
		return model.RateLimitInfo{}, false, fmt.Errorf("redis store is not initialized")
	}
	ctx, span := telemetry.StartDependencySpan(ctx, tracerName, "redis.load_rate_limit")
	defer func() { telemetry.EndSpan(span, err) }()

	fields, err := s.client.HGetAll(ctx, s.rateLimitKey()).Result()
	if err != nil {
		return model.RateLimitInfo{}, false, fmt.Errorf("read rate-limit hash: %w", err)
	}
	if len(fields) == 0 {
		return model.RateLimitInfo{}, false, nil
	}
	info, ok := decodeRateLimit(fields)
	return info, ok, nil
}

func decodeRateLimit(fields map[string]string) (model.RateLimitInfo, bool) {
	limit, err := strconv.Atoi(fields["limit"])
	if err != nil {
		return model.RateLimitInfo{}, false
	}
	remaining, err := strconv.Atoi(fields["remaining"])
	if err != nil {
		return model.RateLimitInfo{}, false
	}
	used, _ := strconv.Atoi(fields["used"])
	resetUnix, err := strconv.ParseInt(fields["reset_at"], 10, 64)
	if err != nil {
		return model.RateLimitInfo{}, false
	}
	observedNanos, _ := strconv.ParseInt(fields["observed_at"], 10, 64)

	info := model.RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		Used:      used,
		ResetAt:   time.Unix(resetUnix, 0).UTC(),
		Resource:  fields["resource"],
	}
	if observedNanos > 0 {
		info.ObservedAt = time.Unix(0, observedNanos).UTC()
	}
	return info, true
}

func (s *RedisStore) rateLimitKey() string {
	return s.namespace + ":rate_limit:unauthenticated"
}
