// Package ratelimitmw implements the per-client ingress rate limiting named
// in §6. A Limiter applies one per-minute rate per client IP; cmd/execcore
// mounts a single Limiter on every route, so control paths share the
// webhook rate and no tighter limit is applied to them. It is grounded on the token-bucket idiom this
// core's Broker Gateway already uses for the Global Rate Limiter
// (internal/broker/gateway.go), applied in-process per client IP instead of
// against a single shared broker connection.
package ratelimitmw

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per client IP, lazily created on first
// use. Buckets are never removed, so the map grows with every distinct
// client IP seen.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// New builds a Limiter allowing ratePerMinute requests per minute per IP,
// with a burst equal to that same per-minute count.
func New(ratePerMinute int) *Limiter {
	if ratePerMinute <= 0 {
		ratePerMinute = 100
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(float64(ratePerMinute) / 60.0),
		burst:   ratePerMinute,
	}
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Allow reports whether key (typically a client IP) may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.bucketFor(key).Allow()
}

// Middleware returns a gin handler that rejects with 429 and a
// machine-readable code once a client IP exceeds its bucket, otherwise
// calls through. A separate, tighter Limiter should be mounted on
// sensitive control paths (§6: "10 req/min on sensitive paths").
func Middleware(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !l.Allow(key) {
			c.Header("Retry-After", strconv.Itoa(1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error_kind": "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// Evict does nothing: no bucket is dropped, whatever idleFor is.
func (l *Limiter) Evict(idleFor time.Duration) {
	// rate.Limiter carries no last-used timestamp; a bounded-size sweep
	// keyed on call volume is left to the caller (e.g. a periodic full
	// reset) rather than tracked per bucket here.
	_ = idleFor
}
