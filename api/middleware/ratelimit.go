package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/harvester/config"
	"github.com/use-agent/harvester/models"
)

// callerBuckets holds one token bucket per caller identity (API key or
// client IP). Buckets idle past ClientTTL are swept out so the map
// cannot grow without bound.
type callerBuckets struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     config.RateLimitConfig
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newCallerBuckets(cfg config.RateLimitConfig) *callerBuckets {
	b := &callerBuckets{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
	}
	go b.sweep()
	return b
}

func (b *callerBuckets) allow(identity string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.buckets[identity]
	if !ok {
		bk = &bucket{limiter: rate.NewLimiter(rate.Limit(b.cfg.RequestsPerSecond), b.cfg.Burst)}
		b.buckets[identity] = bk
	}
	bk.lastSeen = time.Now()
	return bk.limiter.Allow()
}

func (b *callerBuckets) sweep() {
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-b.cfg.ClientTTL)
		b.mu.Lock()
		for id, bk := range b.buckets {
			if bk.lastSeen.Before(cutoff) {
				delete(b.buckets, id)
			}
		}
		b.mu.Unlock()
	}
}

// RateLimit returns per-caller token-bucket rate limiting middleware.
// The identity is the authenticated API key when present, otherwise
// the client IP.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	buckets := newCallerBuckets(cfg)

	return func(c *gin.Context) {
		identity, exists := c.Get("api_key")
		if !exists {
			identity = c.ClientIP()
		}

		if !buckets.allow(identity.(string)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}

		c.Next()
	}
}
