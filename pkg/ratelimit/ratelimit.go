// Package ratelimit provides per-client request throttling for the HTTP
// layer. Clients are keyed by remote address; each key owns a token
// bucket that refills at the configured per-minute rate.
//
// Two backends are provided: [MemoryLimiter] for single-instance
// deployments and [RedisLimiter] for sharing limits across replicas.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// Limiter decides whether a request from the given client key may
// proceed. Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether the client identified by key may make a
	// request now. Greedy semantics: an allowed request always consumes
	// a token, even if the caller later fails.
	Allow(ctx context.Context, key string) (bool, error)
}

// Config holds the limiter settings shared by both backends.
type Config struct {
	// Capacity is the bucket size: the number of requests a client may
	// burst before refill matters. Must be greater than zero.
	// Defaults to 300.
	Capacity int `yaml:"capacity" env:"RATELIMIT_CAPACITY" envDefault:"300"`

	// RefillPerMinute is the sustained request rate per client. Must be
	// greater than zero. Defaults to 300.
	RefillPerMinute int `yaml:"refill_per_minute" env:"RATELIMIT_REFILL_PER_MINUTE" envDefault:"300"`
}

// Validate checks the configuration for logical correctness.
func (c *Config) Validate() *apperr.Error {
	if c.Capacity <= 0 {
		return apperr.New(apperr.CodeValidation, "ratelimit: capacity must be greater than zero")
	}
	if c.RefillPerMinute <= 0 {
		return apperr.New(apperr.CodeValidation, "ratelimit: refill per minute must be greater than zero")
	}
	return nil
}

// DefaultConfig returns the default limiter settings: a burst capacity of
// 300 requests refilling at 300 per minute.
func DefaultConfig() Config {
	return Config{
		Capacity:        300,
		RefillPerMinute: 300,
	}
}

// ---------------------------------------------------------------------------
// MemoryLimiter — in-process token buckets
// ---------------------------------------------------------------------------

// MemoryLimiter keeps one token bucket per client key in process memory.
// Buckets are created lazily on a client's first request, pre-filled to
// capacity, and kept for the lifetime of the process; the map is never
// evicted, so memory grows with the number of distinct client addresses
// seen. Limits reset on restart.
type MemoryLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	capacity int
	refill   rate.Limit
}

// Compile-time assertion that MemoryLimiter implements Limiter.
var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a MemoryLimiter with the given settings.
func NewMemoryLimiter(cfg Config) (*MemoryLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MemoryLimiter{
		limiters: make(map[string]*rate.Limiter),
		capacity: cfg.Capacity,
		refill:   rate.Limit(cfg.RefillPerMinute) / 60,
	}, nil
}

// Allow consumes one token from the client's bucket, reporting false when
// the bucket is empty. Allow never returns an error; the error return
// exists to satisfy [Limiter].
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.getLimiter(key).Allow(), nil
}

// getLimiter returns the bucket for the given key, creating it on first
// use. The read path takes only the shared lock; creation re-checks under
// the write lock so concurrent first requests share one bucket.
func (l *MemoryLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		limiter, exists = l.limiters[key]
		if !exists {
			limiter = rate.NewLimiter(l.refill, l.capacity)
			l.limiters[key] = limiter
		}
		l.mu.Unlock()
	}

	return limiter
}

// Size returns the number of tracked client keys. Exposed for
// observability and tests.
func (l *MemoryLimiter) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// ---------------------------------------------------------------------------
// RedisLimiter — fixed-window counters shared across replicas
// ---------------------------------------------------------------------------

// Counter is the subset of Redis operations the limiter needs, satisfied
// by the redis client wrapper. The abstraction allows tests to run
// without a Redis instance.
type Counter interface {
	// IncrWithExpiry atomically increments the counter at key, setting
	// expiry when the key is created, and returns the new count.
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisLimiter enforces a fixed-window limit shared by all replicas: one
// counter per (client key, current minute), incremented per request and
// expiring with the window. The window boundary is coarser than the token
// bucket's continuous refill, but the limit holds globally instead of
// per instance.
type RedisLimiter struct {
	counter Counter
	limit   int64
	window  time.Duration
	prefix  string
	now     func() time.Time
}

// Compile-time assertion that RedisLimiter implements Limiter.
var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a RedisLimiter over the given counter. The
// per-window limit is cfg.RefillPerMinute and the window is one minute.
func NewRedisLimiter(counter Counter, cfg Config) (*RedisLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{
		counter: counter,
		limit:   int64(cfg.RefillPerMinute),
		window:  time.Minute,
		prefix:  "ratelimit:",
		now:     time.Now,
	}, nil
}

// Allow increments the client's counter for the current window and
// reports whether it is still within the limit. Errors from the counter
// backend are returned so the caller can decide whether to fail open
// or closed.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowStart := l.now().Truncate(l.window).Unix()
	counterKey := l.prefix + key + ":" + formatWindow(windowStart)

	count, err := l.counter.IncrWithExpiry(ctx, counterKey, l.window)
	if err != nil {
		return false, apperr.Wrap(err, apperr.CodeUnavailableDependency, "ratelimit: counter backend unavailable")
	}
	return count <= l.limit, nil
}

// formatWindow renders a window start timestamp as a decimal string
// without pulling in fmt for the hot path.
func formatWindow(unix int64) string {
	if unix == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	n := unix
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
