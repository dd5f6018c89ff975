// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the two request throttles:
//
//   - EdgeLimiter: an in-memory, per-IP token bucket (golang.org/x/time/rate)
//     that absorbs bursts on every route before any store is touched. It is
//     process-local and exists for abuse control, not for policy.
//   - RateLimit: the fixed-window route-class limiter backed by a shared
//     store (see package ratelimit). Its budgets are the user-visible
//     policy and hold across processes.
//
// Both reject with 429 and the standard error envelope.
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-portfolio-backend/internal/ratelimit"
)

// TooManyRequestsMessage is the body text of every 429 response.
const TooManyRequestsMessage = "Too many requests, please try again later."

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByIP keys buckets by client IP as resolved by Gin (trusted proxies
// apply).
func KeyByIP() keyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

// visitor holds a single token bucket and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// EdgeLimiter implements a per-key token bucket. Buckets are created on
// demand; idle ones are evicted opportunistically during lookups to keep
// memory bounded. It is safe for concurrent use.
type EdgeLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewEdgeLimiter constructs an EdgeLimiter refilling rps tokens per second
// with the given burst (coerced to at least 1).
func NewEdgeLimiter(rps float64, burst int, keyFn keyFunc) *EdgeLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByIP()
	}
	return &EdgeLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the bucket for key, creating it if absent. Every 5000
// lookups idle buckets are dropped first, so a stale bucket being fetched
// is replaced rather than refreshed.
func (el *EdgeLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	el.mu.Lock()
	defer el.mu.Unlock()

	el.cleanupN++
	if el.cleanupN >= 5000 {
		for k, v := range el.visitors {
			if now.Sub(v.lastSeen) >= el.ttl {
				delete(el.visitors, k)
			}
		}
		el.cleanupN = 0
	}

	if v, ok := el.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(el.rps, el.burst)
	el.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Handler returns the Gin middleware. A rejected request gets Retry-After: 1.
func (el *EdgeLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if el.getVisitor(el.keyFn(c)).Allow() {
			c.Next()
			return
		}
		rateLimited.WithLabelValues("edge").Inc()
		c.Header("Retry-After", "1")
		abortJSON(c, http.StatusTooManyRequests, CodeRateLimited, TooManyRequestsMessage, "")
	}
}

// Admitter is the subset of *ratelimit.Limiter used by RateLimit.
type Admitter interface {
	Admit(ctx context.Context, clientKey string, class ratelimit.RouteClass) (ratelimit.Decision, error)
}

// RateLimit enforces the fixed-window budget of class per client IP.
//
// It sets X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset
// (seconds) on every response it sees, plus Retry-After on rejection. When
// the store fails the error is logged and the request proceeds.
func RateLimit(l Admitter, class ratelimit.RouteClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := l.Admit(c.Request.Context(), c.ClientIP(), class)
		if err != nil {
			rateLimitErrors.WithLabelValues(string(class)).Inc()
			LoggerFrom(c).Error().Err(err).Str("class", string(class)).Msg("rate limit check failed; admitting request")
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		h.Set("X-RateLimit-Reset", ceilSeconds(d.ResetAfter))

		if !d.Allowed {
			rateLimited.WithLabelValues(string(class)).Inc()
			h.Set("Retry-After", ceilSeconds(d.RetryAfter))
			abortJSON(c, http.StatusTooManyRequests, CodeRateLimited, TooManyRequestsMessage, "")
			return
		}
		c.Next()
	}
}

// ceilSeconds renders d as whole seconds, rounding up and never below 1
// for a positive duration.
func ceilSeconds(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return strconv.FormatInt(int64(math.Ceil(d.Seconds())), 10)
}
