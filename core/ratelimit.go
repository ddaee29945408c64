package core

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterCleanupInterval = 5 * time.Minute

// LoginLimiter throttles login attempts per client IP and submitted username.
type LoginLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

// NewLoginLimiter allows perMinute attempts per key with an equal burst.
// It returns nil when perMinute is not positive; a nil limiter allows everything.
func NewLoginLimiter(perMinute int) *LoginLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &LoginLimiter{
		rate:        rate.Limit(float64(perMinute) / 60),
		burst:       perMinute,
		lastCleanup: time.Now(),
	}
}

// Allow consumes one attempt for key.
func (l *LoginLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.limiter(key).Allow()
}

func (l *LoginLimiter) limiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	l.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket has refilled, i.e. idle keys.
func (l *LoginLimiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastCleanup) < limiterCleanupInterval {
		return
	}
	l.lastCleanup = time.Now()
	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (l *LoginLimiter) Middleware(usernameField string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		key := c.ClientIP() + "|" + c.PostForm(usernameField)
		lim := l.limiter(key)
		if lim.Allow() {
			c.Next()
			return
		}

		retryAfter := 1
		if l.rate > 0 {
			retryAfter = max(int(math.Ceil(1/float64(l.rate))), 1)
		}
		loginAttempts.WithLabelValues(outcomeLimited).Inc()
		FromContext(c.Request.Context()).Warn().
			Str("client_ip", c.ClientIP()).
			Msg("login rate limit exceeded")
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		respondError(c, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "too many login attempts")
		c.Abort()
	}
}
