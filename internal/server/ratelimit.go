package server

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/comigor/botdesk/internal/logger"
	"github.com/comigor/botdesk/internal/metrics"
)

func clientKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func rejectRateLimited(c *gin.Context, limiter, retryAfter string) {
	c.Header("Retry-After", retryAfter)
	metrics.RateLimitRejected.WithLabelValues(limiter).Inc()
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
}

// sweepInterval is how often idle buckets are dropped from an ipLimiters.
const sweepInterval = time.Minute

// ipLimiters holds one token bucket per client. A bucket that has refilled
// completely carries no state, so sweep drops it and the map only holds
// clients seen recently.
type ipLimiters struct {
	m         sync.Map // map[string]*rate.Limiter
	rps       rate.Limit
	burst     int
	lastSweep atomic.Int64 // unix nanos
}

func newIPLimiters(rps float64, burst int) *ipLimiters {
	l := &ipLimiters{rps: rate.Limit(rps), burst: burst}
	l.lastSweep.Store(time.Now().UnixNano())
	return l
}

func (l *ipLimiters) get(key string) *rate.Limiter {
	if v, ok := l.m.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := l.m.LoadOrStore(key, rate.NewLimiter(l.rps, l.burst))
	return v.(*rate.Limiter)
}

// maybeSweep runs sweep at most once per sweepInterval, on the caller's goroutine.
func (l *ipLimiters) maybeSweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(sweepInterval) || !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	l.sweep(now)
}

func (l *ipLimiters) sweep(now time.Time) {
	l.m.Range(func(k, v any) bool {
		if v.(*rate.Limiter).TokensAt(now) >= float64(l.burst) {
			l.m.Delete(k)
		}
		return true
	})
}

// RateLimitMiddleware enforces a token bucket per client IP, held in process
// memory. rps is the refill rate and burst the bucket size.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	limiters := newIPLimiters(rps, burst)

	return func(c *gin.Context) {
		limiters.maybeSweep(time.Now())
		if !limiters.get(clientKey(c)).Allow() {
			rejectRateLimited(c, "memory", "1")
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}

// RedisRateLimitMiddleware is a fixed-window counter shared by every replica:
// each window allows floor(rps*window)+burst requests per client IP. A nil
// client falls back to the in-memory limiter.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	windowSeconds := int(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	allowed := int64(rps*float64(windowSeconds)) + int64(burst)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		bucket := time.Now().Unix() / int64(windowSeconds)
		key := fmt.Sprintf("rl:%s:%d", clientKey(c), bucket)

		cnt, err := client.Incr(ctx, key).Result()
		if err != nil {
			logger.FromContext(ctx).Error("rate limit check failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			return
		}
		if cnt == 1 {
			_ = client.Expire(ctx, key, time.Duration(windowSeconds+1)*time.Second).Err()
		}
		if cnt > allowed {
			rejectRateLimited(c, "redis", fmt.Sprintf("%d", windowSeconds))
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
