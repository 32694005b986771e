package middleware

import (
	"strconv"
	"time"

	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
	"github.com/communityconnect/connect/backend/go-services/pkg/metrics"
	"github.com/communityconnect/connect/backend/go-services/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const redisLimitPrefix = "ratelimit:"

// RedisRateLimitMiddleware shares a fixed-window counter across instances.
// Each key may make floor(rps*window)+burst requests per window; buckets are
// chosen by limitKey. A nil client falls back to the in-process limiter.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	span := int64(window / time.Second)
	if span <= 0 {
		span = 1
	}
	quota := int64(rps*float64(span)) + int64(burst)

	return func(c *gin.Context) {
		now := time.Now().Unix()
		slot := now / span
		key := redisLimitPrefix + limitKey(c) + ":" + strconv.FormatInt(slot, 10)

		var hits *redis.IntCmd
		_, err := client.TxPipelined(c.Request.Context(), func(p redis.Pipeliner) error {
			hits = p.Incr(c.Request.Context(), key)
			p.Expire(c.Request.Context(), key, time.Duration(span+1)*time.Second)
			return nil
		})
		if err != nil {
			response.Fail(c, apperr.Internal("Rate limit check failed", err))
			return
		}
		if hits.Val() > quota {
			metrics.RateLimitRejected.WithLabelValues("redis").Inc()
			reject(c, strconv.FormatInt((slot+1)*span-now, 10))
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
