package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/Conceptual-Machines/readaloud-api/internal/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	maxTrackedClients = 10000
	clientIdleTTL     = 10 * time.Minute
)

// ClientLimiter is a per-client-IP token bucket in front of the relay so a
// single caller cannot drain the upstream quota. A nil *ClientLimiter allows
// everything.
type ClientLimiter struct {
	rl         *ipRateLimiter
	retryAfter int
	now        func() time.Time
}

// NewClientLimiter returns nil when rps is not positive.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if rps <= 0 {
		return nil
	}
	retryAfter := int(time.Duration(float64(time.Second) / rps).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &ClientLimiter{
		rl:         newIPRateLimiter(rate.Limit(rps), burst),
		retryAfter: retryAfter,
		now:        time.Now,
	}
}

// Allow takes one token for clientIP. When denied it also returns the
// number of seconds the client should wait.
func (l *ClientLimiter) Allow(clientIP string) (bool, int) {
	if l == nil {
		return true, 0
	}
	if l.rl.allow(clientIP, l.now()) {
		return true, 0
	}
	return false, l.retryAfter
}

// RateLimitedError is the failure a denied client receives.
func RateLimitedError(retryAfter int) *apperr.Error {
	return apperr.New(apperr.KindRateLimited, "Too many requests.").
		WithDetails(map[string]any{"retryAfterS": retryAfter})
}

// RateLimit enforces a fresh ClientLimiter. A non-positive rps disables it.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	return Limit(NewClientLimiter(rps, burst))
}

// Limit answers 429 with the relay envelope when limiter denies the client.
func Limit(limiter *ClientLimiter) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		ok, retryAfter := limiter.Allow(ip)
		if ok {
			c.Next()
			return
		}

		logger.Warn("Client rate limited", logger.Fields{
			"request_id": c.GetString(RequestIDKey),
			"client_ip":  ip,
			"path":       c.Request.URL.Path,
		})

		env := apperr.Normalize(apperr.OriginRelay, RateLimitedError(retryAfter))
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success":   false,
			"requestId": c.GetString(RequestIDKey),
			"error":     env,
		})
	}
}

// ipRateLimiter tracks per-IP token-bucket limiters.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimitEntry
	limit    rate.Limit
	burst    int
}

type rateLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(limit rate.Limit, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: make(map[string]*rateLimitEntry),
		limit:    limit,
		burst:    burst,
	}
}

func (l *ipRateLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= maxTrackedClients {
			l.evictIdle(now)
		}
		e = &rateLimitEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = e
	}
	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

// evictIdle drops clients not seen within clientIdleTTL. Caller holds l.mu.
func (l *ipRateLimiter) evictIdle(now time.Time) {
	cutoff := now.Add(-clientIdleTTL)
	for ip, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}
