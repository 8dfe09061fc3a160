package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a simple token bucket rate limiter.
type RateLimiter struct {
	tokens     int
	maxTokens  int
	lastRefill time.Time
	refillRate time.Duration
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		lastRefill: time.Now(),
		refillRate: refillRate,
	}
}

// Allow checks if a request is allowed.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)

	if elapsed >= rl.refillRate {
		tokensToAdd := int(elapsed / rl.refillRate)
		if rl.tokens+tokensToAdd < rl.maxTokens {
			rl.tokens += tokensToAdd
		} else {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// PerAppRateLimit provides per-app_id rate limiting for the ingest
// endpoint: one noisy producer account shouldn't starve the connection
// pool for every other app_id sharing the ingest process.
type PerAppRateLimit struct {
	limiters   map[string]*RateLimiter
	mu         sync.RWMutex
	maxTokens  int
	refillRate time.Duration
}

// NewPerAppRateLimit creates the ingest rate-limit middleware.
func NewPerAppRateLimit(maxTokens int, refillRate time.Duration) *PerAppRateLimit {
	return &PerAppRateLimit{
		limiters:   make(map[string]*RateLimiter),
		maxTokens:  maxTokens,
		refillRate: refillRate,
	}
}

// Middleware returns a gin handler that rejects requests once the
// per-app_id token bucket is exhausted.
func (m *PerAppRateLimit) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("appId")
		if appID == "" {
			c.Next()
			return
		}

		if !m.getLimiter(appID).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (m *PerAppRateLimit) getLimiter(appID string) *RateLimiter {
	m.mu.RLock()
	limiter, exists := m.limiters[appID]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if limiter, exists = m.limiters[appID]; !exists {
			limiter = NewRateLimiter(m.maxTokens, m.refillRate)
			m.limiters[appID] = limiter
		}
		m.mu.Unlock()
	}
	return limiter
}
