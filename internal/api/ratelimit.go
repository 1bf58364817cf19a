package api

import (
	"Minerva/internal/models"
	"Minerva/pkg/util"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// tokenBucket 是单个客户端的令牌桶。按生成速率补充令牌，
// 允许不超过桶容量的突发。
type tokenBucket struct {
	mu       sync.Mutex
	rate     float64 // 每秒生成的令牌数。
	capacity float64
	tokens   float64
	lastFill time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		rate:     rate,
		capacity: float64(burst),
		tokens:   float64(burst),
		lastFill: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(b.lastFill); elapsed > 0 {
		b.tokens += elapsed.Seconds() * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastFill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RateLimit 按客户端 IP 做令牌桶限流。每个 IP 的桶保存在带 TTL 的
// LRU 里，闲置的客户端随容量淘汰。rate <= 0 时中间件不做任何限制。
func RateLimit(rate float64, burst int) gin.HandlerFunc {
	if rate <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(rate)
		if burst < 1 {
			burst = 1
		}
	}

	buckets, err := util.NewWithConfig[string, *tokenBucket](util.CacheConfig{
		Capacity: 4096,
		TTL:      10 * time.Minute,
	})
	if err != nil {
		panic(err)
	}
	var mu sync.Mutex

	return func(c *gin.Context) {
		key := c.ClientIP()

		mu.Lock()
		bucket, ok := buckets.Get(key)
		if !ok {
			bucket = newTokenBucket(rate, burst)
			buckets.Put(key, bucket)
		}
		mu.Unlock()

		if !bucket.allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:     "too many requests",
				Kind:      "rate_limited",
				Retryable: true,
			})
			return
		}
		c.Next()
	}
}
