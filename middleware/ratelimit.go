package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleFor    = 10 * time.Minute
)

// RateLimit applies a per-client-IP token bucket. r is the sustained
// request rate, b the burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		limiters = map[string]*rate.Limiter{}
		seen     = map[string]time.Time{}
	)

	// Idle IPs are swept so the maps do not grow without bound.
	go func() {
		for range time.Tick(limiterSweepEvery) {
			mu.Lock()
			cutoff := time.Now().Add(-limiterIdleFor)
			for ip, at := range seen {
				if at.Before(cutoff) {
					delete(limiters, ip)
					delete(seen, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		mu.Lock()
		lim, ok := limiters[ip]
		if !ok {
			lim = rate.NewLimiter(r, b)
			limiters[ip] = lim
		}
		seen[ip] = time.Now()
		mu.Unlock()

		if !lim.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
