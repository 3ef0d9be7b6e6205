package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-insights/internal/config"
	"github.com/cam3ron2/github-insights/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingTimeout = 5 * time.Second

// newRateLimitStore builds the snapshot store named by cfg. A redis backend
// that cannot be reached at startup falls back to memory.
func newRateLimitStore(cfg *config.Config, logger *zap.Logger) store.RateLimitStore {
	ttl := time.Hour
	if cfg != nil && cfg.Store.SnapshotTTL > 0 {
		ttl = cfg.Store.SnapshotTTL
	}
	if cfg == nil || !strings.EqualFold(strings.TrimSpace(cfg.Store.Backend), "redis") {
		return store.NewMemoryStore(ttl)
	}

	redisStore, err := newRedisStoreFromConfig(cfg, ttl)
	if err != nil {
		logger.Warn("failed to initialize redis store; falling back to in-memory store", zap.Error(err))
		return store.NewMemoryStore(ttl)
	}
	return redisStore
}

func newRedisStoreFromConfig(cfg *config.Config, ttl time.Duration) (*store.RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var redisClient redis.UniversalClient
	if strings.EqualFold(cfg.Store.RedisMode, "sentinel") {
		redisClient = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.Store.RedisMasterSet,
			SentinelAddrs: cfg.Store.RedisSentinelAddrs,
			Password:      cfg.Store.RedisPassword,
			DB:            cfg.Store.RedisDB,
		})
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return store.NewRedisStore(redisClient, store.RedisStoreConfig{
		Namespace: cfg.Store.Namespace,
		TTL:       ttl,
	}), nil
}
