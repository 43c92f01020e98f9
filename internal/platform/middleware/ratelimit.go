package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// limiterPool hands out token-bucket budgets per sender key. All buckets
// share the pool's rate and burst; a bucket holds only its current level and
// the time it was last topped up, so the map stays cheap to grow.
type limiterPool struct {
	mu    sync.Mutex
	byKey map[string]*bucket
	rate  float64
	burst float64
}

type bucket struct {
	level  float64
	topped time.Time
}

func newLimiterPool(cfg RateLimitConfig) *limiterPool {
	return &limiterPool{
		byKey: make(map[string]*bucket),
		rate:  cfg.RequestsPerSecond,
		burst: float64(cfg.BurstSize),
	}
}

// take spends one token from the key's bucket. When the bucket is empty it
// reports the whole seconds a client should wait before retrying.
func (p *limiterPool) take(key string) (ok bool, retryAfter int) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	b, exists := p.byKey[key]
	if !exists {
		b = &bucket{level: p.burst, topped: now}
		p.byKey[key] = b
	}

	b.level += now.Sub(b.topped).Seconds() * p.rate
	if b.level > p.burst {
		b.level = p.burst
	}
	b.topped = now

	if b.level < 1 {
		if p.rate <= 0 {
			return false, 1
		}
		return false, int((1-b.level)/p.rate) + 1
	}
	b.level--
	return true, 0
}

// RateLimit enforces a per-sender request budget. The key is the client IP,
// extended with the authenticated subject when one is present so senders
// behind a shared gateway IP do not starve each other.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	pool := newLimiterPool(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if subject, ok := c.Get("auth_subject").(string); ok && subject != "" {
				key = subject + ":" + key
			}

			ok, retryAfter := pool.take(key)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
