// ratelimit.go enforces per-route, per-principal request budgets with a
// fixed-window counter: N requests in a window succeed, request N+1 is
// rejected, and the budget resets when the window rolls over. The limiter is
// behind an interface so deployments with multiple replicas can swap in the
// Redis-backed implementation without touching the pipeline.
package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kpiflow/kpiflow/internal/apierr"
)

// RateLimiter answers whether one more request fits the key's budget.
type RateLimiter interface {
	// Allow consumes one request from the key's budget. retryAfter is only
	// meaningful when allowed is false.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, retryAfter time.Duration, err error)
}

// RateLimitConfig is one route's budget.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultRateLimitConfig is the budget applied when a route does not set one.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Requests: 120, Window: time.Minute}
}

// AuthRateLimitConfig is the stricter budget for sign-in endpoints.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Requests: 10, Window: time.Minute}
}

type windowEntry struct {
	windowStart time.Time
	count       int
}

// FixedWindowLimiter is the in-process RateLimiter. Counters for idle keys
// are dropped by a background sweep.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	stopCh  chan struct{}
	once    sync.Once

	// now is replaceable in tests.
	now func() time.Time
}

func NewFixedWindowLimiter() *FixedWindowLimiter {
	l := &FixedWindowLimiter{
		entries: make(map[string]*windowEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go l.sweep()
	return l
}

func (l *FixedWindowLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := l.now().Add(-10 * time.Minute)
			l.mu.Lock()
			for key, e := range l.entries {
				if e.windowStart.Before(cutoff) {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// Stop terminates the sweep goroutine.
func (l *FixedWindowLimiter) Stop() {
	l.once.Do(func() { close(l.stopCh) })
}

func (l *FixedWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Duration, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists || now.Sub(e.windowStart) >= window {
		l.entries[key] = &windowEntry{windowStart: now, count: 1}
		return true, limit - 1, 0, nil
	}

	if e.count >= limit {
		retryAfter := window - now.Sub(e.windowStart)
		return false, 0, retryAfter, nil
	}

	e.count++
	return true, limit - e.count, 0, nil
}

// RateLimitMiddleware applies the budget keyed by route template and
// principal. Authenticated requests are keyed by user id so one tenant
// cannot exhaust another's budget from behind shared NAT; anonymous requests
// fall back to the client address. A limiter backend failure fails open: the
// request proceeds and the failure is surfaced through logs.
func RateLimitMiddleware(limiter RateLimiter, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Requests <= 0 {
		cfg = DefaultRateLimitConfig()
	}

	return func(c *gin.Context) {
		key := rateLimitKey(c)

		allowed, remaining, retryAfter, err := limiter.Allow(c.Request.Context(), key, cfg.Requests, cfg.Window)
		if err != nil {
			_ = c.Error(err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			abort(c, apierr.New(apierr.KindRateLimitExceeded, "Too many requests. Please try again later.").
				WithDetails(map[string]interface{}{"retryAfter": seconds}))
			return
		}

		c.Next()
	}
}

// rateLimitKey scopes the budget to (route, principal).
func rateLimitKey(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	if userID := UserID(c); userID != "" {
		return route + "|user:" + userID
	}
	return route + "|ip:" + c.ClientIP()
}
