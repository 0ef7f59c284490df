// Package ratelimit implements the rate gate (spec component H): a
// Redis-backed token-bucket limiter sitting in front of the HTTP
// surface. It is an external collaborator in spec terms — the
// reservation core's correctness never depends on it — wired here with
// its own Redis connection, distinct from the hot-state store's redigo
// pool, since it is a logically separate keyspace and concern.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	myLogger "github.com/flashreserve/reservation-core/internal/logger"
)

// tokenBucketScript atomically refills and consumes one token for key.
// KEYS[1] = bucket key
// ARGV[1] = now (ms), ARGV[2] = capacity, ARGV[3] = refill tokens,
// ARGV[4] = refill interval (ms), ARGV[5] = key TTL (seconds)
// Returns {allowed, tokens_remaining, retry_after_ms}.
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
	local until_next = interval_ms - (now_ms - last_refill)
	if until_next < 0 then until_next = 0 end
	retry_after_ms = until_next
end

redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return {allowed, tokens, retry_after_ms}
`)

// Config controls the token bucket's shape.
type Config struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	KeyPrefix      string
}

// Gate is a Redis-backed token-bucket rate limiter.
type Gate struct {
	client *redis.Client
	cfg    Config
}

// New connects to redisAddr and returns a Gate. If cfg.Enabled is false
// the returned Gate's middleware is a no-op and no connection is made.
func New(redisAddr string, cfg Config) *Gate {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl"
	}
	if !cfg.Enabled {
		return &Gate{cfg: cfg}
	}
	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return &Gate{client: client, cfg: cfg}
}

// Close closes the underlying Redis client.
func (g *Gate) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Allow consumes one token from userID's bucket for route. On a Redis
// failure it fails open (allows the request) and returns the error for
// logging — the rate gate protects capacity, it is never allowed to
// become the reason a correct reserve/confirm/cancel call is rejected.
func (g *Gate) Allow(ctx context.Context, userID, route string) (allowed bool, retryAfter time.Duration, err error) {
	if !g.cfg.Enabled || g.client == nil {
		return true, 0, nil
	}

	key := fmt.Sprintf("%s:%s:%s", g.cfg.KeyPrefix, userID, route)
	now := time.Now()

	res, err := tokenBucketScript.Run(ctx, g.client, []string{key},
		now.UnixMilli(),
		g.cfg.Capacity,
		g.cfg.RefillTokens,
		g.cfg.RefillInterval.Milliseconds(),
		int64(5*g.cfg.RefillInterval/time.Second+5),
	).Result()
	if err != nil {
		return true, 0, err
	}

	arr, ok := res.([]interface{})
	if !ok || len(arr) != 3 {
		return true, 0, fmt.Errorf("ratelimit: unexpected script result %#v", res)
	}

	allowedInt, _ := arr[0].(int64)
	retryMS, _ := arr[2].(int64)

	return allowedInt == 1, time.Duration(retryMS) * time.Millisecond, nil
}

// Middleware returns an http.Handler wrapper that enforces the bucket
// per (user_id, method+path). It expects a verified user_id to already
// be present in the request context (i.e. it runs after bearer auth).
func (g *Gate) Middleware(userIDFromContext func(ctx context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := myLogger.FromContext(r.Context(), "ratelimit_middleware")

			userID := userIDFromContext(r.Context())
			if userID == "" {
				userID = "anon"
			}
			route := r.Method + " " + r.URL.Path

			allowed, retryAfter, err := g.Allow(r.Context(), userID, route)
			if err != nil {
				logger.Warn("rate gate unavailable, failing open", "error", err)
			}
			if !allowed {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"retry_after":%d}`, secs)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
