// Package store persists the unauthenticated rate-limit snapshot so that
// replicas and CLI invocations can read the last observed budget.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/cam3ron2/github-insights/internal/model"
)

// RateLimitStore saves and loads the shared rate-limit snapshot.
type RateLimitStore interface {
	SaveRateLimit(ctx context.Context, info model.RateLimitInfo) error
	LoadRateLimit(ctx context.Context) (model.RateLimitInfo, bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// MemoryStore keeps the snapshot in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	info    model.RateLimitInfo
	savedAt time.Time
	known   bool

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewMemoryStore creates a memory store. A zero ttl keeps snapshots forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl: ttl,
		Now: time.Now,
	}
}

// SaveRateLimit overwrites the snapshot.
func (s *MemoryStore) SaveRateLimit(_ context.Context, info model.RateLimitInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info = info
	s.savedAt = s.Now()
	s.known = true
	return nil
}

// LoadRateLimit returns the snapshot unless it expired.
func (s *MemoryStore) LoadRateLimit(_ context.Context) (model.RateLimitInfo, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.known {
		return model.RateLimitInfo{}, false, nil
	}
	if s.ttl > 0 && s.Now().Sub(s.savedAt) >= s.ttl {
		return model.RateLimitInfo{}, false, nil
	}
	return s.info, true, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
