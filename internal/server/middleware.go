package server

import (
	"net/http"
	"sync"
	"time"

	"live-auction/internal/auth"
	"live-auction/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if userID, ok := auth.UserID(c); ok {
		fields["user_id"] = userID
	}
	utils.Info("HTTP Request", fields)
}

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userRateLimiter keeps one token bucket per authenticated user
type userRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newUserRateLimiter(perSecond float64, burst int) *userRateLimiter {
	return &userRateLimiter{
		limiters:  make(map[string]*limiterEntry),
		limit:     rate.Limit(perSecond),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

func (l *userRateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RateLimitBids throttles bid submissions per user. It must run after auth so the
// caller is known; anonymous requests fall back to the client IP.
func RateLimitBids(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newUserRateLimiter(perSecond, burst)

	return func(c *gin.Context) {
		key, ok := auth.UserID(c)
		if !ok {
			key = "ip:" + c.ClientIP()
		}
		if !limiter.allow(key, time.Now()) {
			utils.JSONError(c, http.StatusTooManyRequests, "too many bids, slow down", gin.H{"reason": "rate_limited"})
			utils.Warn("rate limit exceeded", map[string]any{"key": key, "path": c.Request.URL.Path})
			return
		}
		c.Next()
	}
}
