// Package ratelimit throttles authenticated requests with a shared redis
// token bucket. Without a redis address the limiter is a pass-through.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/billflow/billflow/internal/config"
)

const keyRequestUser = "ratelimit:user:%s"

type RequestLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewRequestLimiter(cfg config.Config) *RequestLimiter {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return &RequestLimiter{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	return &RequestLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.RateLimit.RequestRate,
		burst:   cfg.RateLimit.RequestBurst,
	}
}

func (l *RequestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowUser consumes one token from the user's bucket. Disabled limiters
// always allow.
func (l *RequestLimiter) AllowUser(ctx context.Context, userID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyRequestUser, strings.TrimSpace(userID)), l.rate, l.burst)
}

// RetryAfterSeconds renders a Retry-After header value, minimum one second.
func RetryAfterSeconds(d time.Duration) int {
	seconds := int(d / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
