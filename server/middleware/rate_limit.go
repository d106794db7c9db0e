// Package middleware provides HTTP middleware shared by the API surface.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-key request rate. Keys are typically user IDs so
// one chat-heavy seller cannot starve the providers for everyone else.
type RateLimiter struct {
	mu       sync.Mutex
	limits   map[string]*rate.Limiter
	perKey   rate.Limit
	burst    int
	lastSeen map[string]time.Time
}

// RateLimiterConfig configures the per-key rate.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained per-key rate (default: 5).
	RequestsPerSecond float64
	// Burst is the per-key burst allowance (default: 10).
	Burst int
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &RateLimiter{
		limits:   make(map[string]*rate.Limiter),
		perKey:   rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
		lastSeen: make(map[string]time.Time),
	}
}

// Allow reports whether a request for key fits within its rate.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiterFor(key).Allow()
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lastSeen[key] = time.Now()
	if limiter, ok := rl.limits[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rl.perKey, rl.burst)
	rl.limits[key] = limiter
	return limiter
}

// Prune drops limiters idle for longer than maxIdle and returns the number
// removed. Called periodically so the per-key map stays bounded.
func (rl *RateLimiter) Prune(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for key, seen := range rl.lastSeen {
		if seen.Before(cutoff) {
			delete(rl.limits, key)
			delete(rl.lastSeen, key)
			removed++
		}
	}
	return removed
}

// PerUser returns an echo middleware that rate limits by the key extracted
// from the request. Requests without a key pass through.
func (rl *RateLimiter) PerUser(keyFn func(echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := keyFn(c)
			if key == "" || rl.Allow(key) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
	}
}
