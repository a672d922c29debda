package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	pkgredis "github.com/prohmpiriya/gym-platform/pkg/redis"
	"github.com/prohmpiriya/gym-platform/pkg/response"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	BurstSize         int
	// RedisClient switches to the distributed limiter when set.
	RedisClient *pkgredis.Client
	KeyPrefix   string
	// CleanupInterval and EntryTTL bound the local limiter's memory.
	CleanupInterval time.Duration
	EntryTTL        time.Duration
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		KeyPrefix:         "ratelimit:",
		CleanupInterval:   time.Minute,
		EntryTTL:          time.Minute,
	}
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastUpdate time.Time
}

// LocalRateLimiter is an in-memory token bucket per key
type LocalRateLimiter struct {
	config  RateLimitConfig
	entries sync.Map
	stop    chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewLocalRateLimiter starts a limiter and its cleanup goroutine.
func NewLocalRateLimiter(config RateLimitConfig) *LocalRateLimiter {
	rl := &LocalRateLimiter{config: config, stop: make(chan struct{}), now: time.Now}
	if config.CleanupInterval > 0 {
		go rl.cleanup()
	}
	return rl
}

func (rl *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := rl.now()
	v, _ := rl.entries.LoadOrStore(key, &bucket{tokens: float64(rl.config.BurstSize), lastUpdate: now})
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens = min(float64(rl.config.BurstSize), b.tokens+elapsed*float64(rl.config.RequestsPerSecond))
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

func (rl *LocalRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := rl.now().Add(-rl.config.EntryTTL)
			rl.entries.Range(func(key, value interface{}) bool {
				b := value.(*bucket)
				b.mu.Lock()
				stale := b.lastUpdate.Before(cutoff)
				b.mu.Unlock()
				if stale {
					rl.entries.Delete(key)
				}
				return true
			})
		case <-rl.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *LocalRateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call("HMGET", key, "tokens", "last_update")
local tokens = tonumber(data[1]) or burst
local last_update = tonumber(data[2]) or now

tokens = math.min(burst, tokens + (now - last_update) * rate)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_update", now)
redis.call("EXPIRE", key, 60)
return allowed
`)

// RedisRateLimiter shares buckets across replicas.
type RedisRateLimiter struct {
	config RateLimitConfig
	now    func() time.Time
}

func NewRedisRateLimiter(config RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{config: config, now: time.Now}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(rl.now().UnixNano()) / 1e9
	res, err := tokenBucketScript.Run(ctx, rl.config.RedisClient,
		[]string{rl.config.KeyPrefix + key},
		rl.config.RequestsPerSecond, rl.config.BurstSize, strconv.FormatFloat(now, 'f', 6, 64),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}

// NewLimiter picks the Redis limiter when a client is configured.
func NewLimiter(config RateLimitConfig) Limiter {
	if config.RedisClient != nil {
		return NewRedisRateLimiter(config)
	}
	return NewLocalRateLimiter(config)
}

// RateLimiter limits per authenticated user, falling back to client IP.
// Redis errors fail open.
func RateLimiter(limiter Limiter, config RateLimitConfig, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if uid, ok := GetUserID(c); ok {
			key = "user:" + uid
		}

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.WarnContext(c.Request.Context(), "rate limiter unavailable, allowing request", zap.Error(err))
			allowed = true
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerSecond))
		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Error("Rate limit exceeded. Please retry after 1 second(s)."))
			return
		}
		c.Next()
	}
}
