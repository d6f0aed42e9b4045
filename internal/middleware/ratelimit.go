package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/consultation-booking/internal/config"
	"github.com/iliyamo/consultation-booking/internal/logger"
)

// Decision is the outcome of taking one token from a bucket.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RateStore holds token buckets.  Implementations must evict idle buckets
// on their own.
type RateStore interface {
	Take(ctx context.Context, key string, now time.Time) (Decision, error)
}

var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// RedisTokenBucket keeps buckets in Redis so every instance shares them.
// Redis expires idle buckets after cfg.TTL.
type RedisTokenBucket struct {
	rdb *redis.Client
	cfg config.RateLimitConfig
}

func NewRedisTokenBucket(rdb *redis.Client, cfg config.RateLimitConfig) *RedisTokenBucket {
	return &RedisTokenBucket{rdb: rdb, cfg: cfg}
}

func (b *RedisTokenBucket) Take(ctx context.Context, key string, now time.Time) (Decision, error) {
	vals, err := tokenBucketScript.Run(ctx, b.rdb, []string{key},
		now.UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL/time.Second),
	).Result()
	if err != nil {
		return Decision{}, err
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script result %#v", vals)
	}
	return Decision{
		Allowed:    asInt64(arr[0]) == 1,
		Remaining:  asInt64(arr[1]),
		RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

type bucket struct {
	tokens     int64
	lastRefill time.Time
	lastSeen   time.Time
}

// MemoryTokenBucket is the single-instance fallback when Redis is not
// reachable.  A background ticker evicts buckets idle for longer than
// cfg.TTL; call Stop to end it.
type MemoryTokenBucket struct {
	cfg config.RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemoryTokenBucket(cfg config.RateLimitConfig) *MemoryTokenBucket {
	m := &MemoryTokenBucket{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	every := cfg.TTL / 2
	if every <= 0 || every > time.Minute {
		every = time.Minute
	}
	go m.evictLoop(every)
	return m
}

func (m *MemoryTokenBucket) Take(_ context.Context, key string, now time.Time) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	capacity := int64(m.cfg.Capacity)
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, lastRefill: now}
		m.buckets[key] = b
	}
	b.lastSeen = now

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 && m.cfg.RefillInterval > 0 {
		intervals := int64(elapsed / m.cfg.RefillInterval)
		if intervals > 0 {
			b.tokens = min(capacity, b.tokens+intervals*int64(m.cfg.RefillTokens))
			b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * m.cfg.RefillInterval)
		}
	}

	if b.tokens > 0 {
		b.tokens--
		return Decision{Allowed: true, Remaining: b.tokens}, nil
	}
	retry := m.cfg.RefillInterval - now.Sub(b.lastRefill)
	if retry < 0 {
		retry = 0
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

// Evict drops buckets idle since before now-TTL.  It returns how many
// were removed.
func (m *MemoryTokenBucket) Evict(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, b := range m.buckets {
		if now.Sub(b.lastSeen) > m.cfg.TTL {
			delete(m.buckets, k)
			n++
		}
	}
	return n
}

// Len reports the number of live buckets.
func (m *MemoryTokenBucket) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

func (m *MemoryTokenBucket) Stop() { m.stopOnce.Do(func() { close(m.stop) }) }

func (m *MemoryTokenBucket) evictLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-t.C:
			m.Evict(now)
		}
	}
}

// RateLimit takes one token per request from store.  When the store
// errors the request is let through: losing the limiter must not take
// reservations down with it.
func RateLimit(cfg config.RateLimitConfig, store RateStore, log *logger.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || store == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			d, err := store.Take(c.Request().Context(), key, time.Now())
			if err != nil {
				log.Warn("rate limiter unavailable", "key", key, "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "rate limit exceeded",
					"code":        "TOO_MANY_REQUESTS",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "route":
		parts = append(parts, "route", route)
	default: // ip_route
		parts = append(parts, "ip", ip, "route", route)
	}
	return strings.Join(parts, ":")
}
