package middleware

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"
	"go.pilab.hu/fence/errors"
	"golang.org/x/time/rate"
)

const (
	defaultLimiterTTL      = 10 * time.Minute
	defaultLimiterCapacity = 10000
)

// RateLimiter provides per-identifier rate limiting using token bucket algorithm.
// Idle identifiers expire from the cache and the least recently used ones are
// evicted once the capacity is reached.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *ttlcache.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with the given burst
// for every identifier.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	limiters := ttlcache.New(
		ttlcache.WithTTL[string, *rate.Limiter](defaultLimiterTTL),
		ttlcache.WithCapacity[string, *rate.Limiter](defaultLimiterCapacity),
	)
	go limiters.Start()

	return &RateLimiter{
		limiters: limiters,
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Allow checks if a request from the given identifier is allowed.
func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if item := rl.limiters.Get(identifier); item != nil {
		return item.Value().Allow()
	}

	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters.Set(identifier, limiter, ttlcache.DefaultTTL)

	return limiter.Allow()
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.limiters.Stop()
}

// RateLimit rejects requests over the limit with 429 temporarily_unavailable.
// keyFunc picks the identifier; onLimit, when set, is called for each rejection.
func RateLimit(rl *RateLimiter, keyFunc func(echo.Context) string, onLimit func()) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rl.Allow(keyFunc(c)) {
				return next(c)
			}
			if onLimit != nil {
				onLimit()
			}
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, errors.NewTemporarilyUnavailable("too many requests"))
		}
	}
}

// ClientKey identifies a token request by remote IP and the claimed client ID.
// The ID is not authenticated yet, so it never names a bucket on its own: a
// caller elsewhere cannot drain a client's budget by sending its ID.
func ClientKey(c echo.Context) string {
	key := "ip:" + c.RealIP()

	id := c.FormValue("client_id")
	if basicID, _, ok := c.Request().BasicAuth(); ok && basicID != "" {
		id = basicID
		if dec, err := url.QueryUnescape(basicID); err == nil {
			id = dec
		}
	}
	if id != "" {
		key += "|client:" + id
	}
	return key
}
