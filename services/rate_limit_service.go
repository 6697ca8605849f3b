package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts hits per key in fixed windows.
type RateLimiter interface {
	// CheckLimit records one hit for key and reports whether it is within
	// limit for the current window. When it is not, retryAfter is the time
	// until the window resets.
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
	// Ping reports whether the counter backend is reachable.
	Ping(ctx context.Context) error
	// Name identifies the backend in health output.
	Name() string
}

// RedisRateLimiter keeps counters in Redis so every replica shares them.
type RedisRateLimiter struct {
	redis     redis.Cmdable
	keyPrefix string
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

func NewRedisRateLimiter(client redis.Cmdable) *RedisRateLimiter {
	return &RedisRateLimiter{
		redis:     client,
		keyPrefix: "portfolio:rate_limit:",
	}
}

func (s *RedisRateLimiter) Name() string { return "redis" }

// CheckLimit increments the window counter. The expiry is only set by the
// first hit (EXPIRE NX) so the window does not slide with later hits.
func (s *RedisRateLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	rKey := s.keyPrefix + key

	pipe := s.redis.Pipeline()
	incr := pipe.Incr(ctx, rKey)
	pipe.ExpireNX(ctx, rKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	if incr.Val() <= int64(limit) {
		return true, 0, nil
	}

	ttl, err := s.redis.TTL(ctx, rKey).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl <= 0 {
		// Counter lost its expiry; restart the window rather than block forever.
		if err := s.redis.Expire(ctx, rKey, window).Err(); err != nil {
			return false, 0, err
		}
		ttl = window
	}
	return false, ttl, nil
}

func (s *RedisRateLimiter) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// memorySweepThreshold bounds how many keys accumulate before expired
// windows are pruned.
const memorySweepThreshold = 4096

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimiter is a single-process fixed-window limiter used when no
// Redis address is configured.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (m *MemoryRateLimiter) Name() string { return "memory" }

func (m *MemoryRateLimiter) CheckLimit(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if len(m.windows) >= memorySweepThreshold {
		m.sweep(now)
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++

	if w.count <= limit {
		return true, 0, nil
	}
	return false, w.resetAt.Sub(now), nil
}

func (m *MemoryRateLimiter) sweep(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
		}
	}
}

func (m *MemoryRateLimiter) Ping(context.Context) error { return nil }

// Len reports how many windows are tracked.
func (m *MemoryRateLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
