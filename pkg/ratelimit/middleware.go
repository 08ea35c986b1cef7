package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/pkg/metrics"
)

type Limiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

type RateLimitConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// FromConfig fills a RateLimitConfig from server settings, keeping defaults
// for anything left at zero. Intervals are in seconds.
func FromConfig(cfg config.RateLimitConfig) RateLimitConfig {
	rl := DefaultConfig()
	if cfg.RPS > 0 {
		rl.RPS = cfg.RPS
	}
	if cfg.Burst > 0 {
		rl.Burst = cfg.Burst
	}
	if cfg.CleanupInterval > 0 {
		rl.CleanupInterval = time.Duration(cfg.CleanupInterval) * time.Second
	}
	if cfg.MaxAge > 0 {
		rl.MaxAge = time.Duration(cfg.MaxAge) * time.Second
	}
	return rl
}

type limiterSet struct {
	cfg      RateLimitConfig
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

func (s *limiterSet) get(key string) *Limiter {
	s.mu.RLock()
	limiter, exists := s.limiters[key]
	s.mu.RUnlock()

	if !exists {
		s.mu.Lock()
		limiter, exists = s.limiters[key]
		if !exists {
			limiter = &Limiter{
				limiter: rate.NewLimiter(rate.Limit(s.cfg.RPS), s.cfg.Burst),
			}
			s.limiters[key] = limiter
		}
		s.mu.Unlock()
	}

	limiter.mu.Lock()
	limiter.lastSeen = time.Now()
	limiter.mu.Unlock()

	return limiter
}

func (s *limiterSet) evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, limiter := range s.limiters {
		limiter.mu.Lock()
		lastSeen := limiter.lastSeen
		limiter.mu.Unlock()
		if now.Sub(lastSeen) > s.cfg.MaxAge {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterSet) cleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evict(now)
		}
	}
}

// RateLimitMiddleware limits requests per client IP. Idle limiters are
// evicted until ctx is done.
func RateLimitMiddleware(ctx context.Context, cfg RateLimitConfig) gin.HandlerFunc {
	set := &limiterSet{
		cfg:      cfg,
		limiters: make(map[string]*Limiter),
	}
	go set.cleanup(ctx)

	limit := formatRate(cfg.RPS)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		limiter := set.get(clientIP)

		if !limiter.limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Limit", limit)
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()

		c.Header("X-RateLimit-Limit", limit)
		remaining := limiter.limiter.Burst() - int(limiter.limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

func formatRate(rps float64) string {
	return strconv.FormatFloat(rps, 'f', -1, 64)
}
