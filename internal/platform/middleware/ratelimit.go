package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// KeyFunc picks the bucket for a request. Defaults to tenant + client IP.
	KeyFunc func(echo.Context) string
	// IdleTTL drops buckets not used for this long. Defaults to 10 minutes.
	IdleTTL time.Duration

	now func() time.Time
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 50, BurstSize: 100}
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// limiter keeps one token bucket per key behind a single mutex.
type limiter struct {
	mu        sync.Mutex
	rate      float64
	burst     float64
	idleTTL   time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	l := &limiter{
		rate:    cfg.RequestsPerSecond,
		burst:   float64(cfg.BurstSize),
		idleTTL: cfg.IdleTTL,
		buckets: make(map[string]*bucket),
		now:     cfg.now,
	}
	if l.idleTTL <= 0 {
		l.idleTTL = 10 * time.Minute
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.burst < 1 {
		l.burst = 1
	}
	return l
}

// take consumes one token for key. When the bucket is empty it returns false
// and the number of seconds until a token is available.
func (l *limiter) take(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastSeen: now}
		l.buckets[key] = b
	} else {
		b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.lastSeen).Seconds()*l.rate)
		b.lastSeen = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, 1
	}
	return false, int(math.Ceil((1 - b.tokens) / l.rate))
}

func (l *limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

func defaultRateKey(c echo.Context) string {
	key := c.RealIP()
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		key = tid + ":" + key
	}
	return key
}

// RateLimit rejects requests beyond the configured rate with 429.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	l := newLimiter(cfg)
	keyFn := cfg.KeyFunc
	if keyFn == nil {
		keyFn = defaultRateKey
	}
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			ok, retry := l.take(keyFn(c))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retry))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
