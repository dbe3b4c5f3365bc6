package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts attempts per key in fixed windows.
type Limiter interface {
	// Hit records one attempt for key. It returns ok=false and the time until the
	// window resets once more than max attempts were seen in the window.
	Hit(ctx context.Context, key string, max int, window time.Duration) (ok bool, retryAfter time.Duration, err error)
}

// RedisLimiter is a fixed-window Limiter on INCR + PEXPIRE.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisLimiter returns a Limiter storing counters under prefix (default "sessiond:rl:").
func NewRedisLimiter(rdb redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "sessiond:rl:"
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix}
}

// Hit implements Limiter.
func (l *RedisLimiter) Hit(ctx context.Context, key string, max int, window time.Duration) (bool, time.Duration, error) {
	k := l.prefix + key
	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return true, 0, fmt.Errorf("limiter incr: %w", err)
	}
	if count == 1 {
		if err := l.rdb.PExpire(ctx, k, window).Err(); err != nil {
			return true, 0, fmt.Errorf("limiter expire: %w", err)
		}
	}
	if count <= int64(max) {
		return true, 0, nil
	}

	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil || ttl <= 0 {
		// Key lost its TTL (e.g. crash between INCR and PEXPIRE); restore it.
		_ = l.rdb.PExpire(ctx, k, window).Err()
		ttl = window
	}
	return false, ttl, nil
}

// MemoryLimiter is an in-process fixed-window Limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]memWindow
}

type memWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter returns an empty MemoryLimiter.
func NewMemoryLimiter(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{now: now, windows: make(map[string]memWindow)}
}

// Hit implements Limiter.
func (l *MemoryLimiter) Hit(_ context.Context, key string, max int, window time.Duration) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = memWindow{resetAt: now.Add(window)}
		l.pruneLocked(now)
	}
	w.count++
	l.windows[key] = w

	if w.count <= max {
		return true, 0, nil
	}
	return false, w.resetAt.Sub(now), nil
}

func (l *MemoryLimiter) pruneLocked(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

// LoginPolicy bounds login attempts per email and per client IP.
type LoginPolicy struct {
	MaxPerEmail int
	MaxPerIP    int
	Window      time.Duration
}

// DefaultLoginPolicy allows 10 attempts per email and 50 per IP every 15 minutes.
func DefaultLoginPolicy() LoginPolicy {
	return LoginPolicy{MaxPerEmail: 10, MaxPerIP: 50, Window: 15 * time.Minute}
}

func loginEmailKey(emailNorm string) string { return "login:email:" + emailNorm }

func loginIPKey(ip string) string { return "login:ip:" + strings.TrimSpace(ip) }
