package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter interface for different rate limiting strategies
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() rate.Limit
	Burst() int
}

// TokenBucketLimiter implements token bucket algorithm shared by all keys
type TokenBucketLimiter struct {
	limiter *rate.Limiter
}

func NewTokenBucketLimiter(limit rate.Limit, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limiter: rate.NewLimiter(limit, burst),
	}
}

// PerMinute builds a limiter allowing n calls a minute, in bursts of up to n.
func PerMinute(n int) *TokenBucketLimiter {
	return NewTokenBucketLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.limiter.Allow(), nil
}

func (l *TokenBucketLimiter) Limit() rate.Limit {
	return l.limiter.Limit()
}

func (l *TokenBucketLimiter) Burst() int {
	return l.limiter.Burst()
}

// Middleware creates a Gin middleware for rate limiting
func Middleware(limiter RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			key = c.ClientIP()
		}

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Rate limiting error",
			})
			return
		}

		if !allowed {
			retryAfter := 1
			if l := float64(limiter.Limit()); l > 0 {
				retryAfter = max(1, int(math.Round(1/l)))
			}
			c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Burst()))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests, please try again later",
			})
			return
		}

		c.Next()
	}
}

// IPKeyFunc returns client IP as rate limit key
func IPKeyFunc(c *gin.Context) string {
	return c.ClientIP()
}
