package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/response"
	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window per-IP limiter. Windows reset lazily on the
// next request, so an idle IP costs nothing between cleanups.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	length  time.Duration
}

type window struct {
	count   int
	startAt time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window length.
func NewRateLimiter(limit int, length time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		length:  length,
	}

	go func() {
		for range time.Tick(time.Minute) {
			rl.cleanup()
		}
	}()

	return rl
}

// Middleware returns a Gin middleware that rejects requests over the limit
// with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[ip]
	if !ok || now.Sub(w.startAt) >= rl.length {
		rl.windows[ip] = &window{count: 1, startAt: now}
		return true
	}

	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, w := range rl.windows {
		if time.Since(w.startAt) > 2*rl.length {
			delete(rl.windows, ip)
		}
	}
}
