package middleware

import (
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/limited-seats/internal/config"
    "github.com/iliyamo/limited-seats/internal/logger"
    "github.com/iliyamo/limited-seats/internal/metrics"
)

// now is swapped in tests.
var now = time.Now

// limiterScript refills the bucket for the elapsed whole intervals and then
// takes one token.  It returns {allowed, tokens_left, retry_after_ms}.
var limiterScript = redis.NewScript(`
local key      = KEYS[1]
local now_ms   = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill   = tonumber(ARGV[3])
local every_ms = tonumber(ARGV[4])
local ttl      = tonumber(ARGV[5])

local tokens = tonumber(redis.call('HGET', key, 'tokens'))
local last   = tonumber(redis.call('HGET', key, 'last_ms'))
if tokens == nil or last == nil then
    tokens, last = capacity, now_ms
end

local steps = math.floor(math.max(0, now_ms - last) / every_ms)
if steps > 0 then
    tokens = math.min(capacity, tokens + steps * refill)
    last = last + steps * every_ms
end

local allowed, wait_ms = 0, 0
if tokens >= 1 then
    allowed, tokens = 1, tokens - 1
else
    wait_ms = math.max(0, every_ms - (now_ms - last))
end

redis.call('HSET', key, 'tokens', tokens, 'last_ms', last)
redis.call('EXPIRE', key, ttl)
return { allowed, tokens, wait_ms }
`)

// bucketResult is the decoded reply of limiterScript.
type bucketResult struct {
    allowed   bool
    remaining int64
    retry     time.Duration
}

// NewTokenBucket limits requests per key (ip, user, route or a mix) with a
// Redis-backed token bucket.  Rejected requests get 429 with Retry-After.
// It fails open: when Redis is down the request goes through and a warning
// is logged.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, l logger.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            ctx := c.Request().Context()
            key := buildRateKey(cfg, c)

            reply, err := limiterScript.Run(ctx, rdb, []string{key},
                now().UnixMilli(),
                cfg.Capacity,
                cfg.RefillTokens,
                cfg.RefillInterval.Milliseconds(),
                int64(cfg.TTL/time.Second),
            ).Result()
            if err != nil {
                l.Warnf(ctx, "ratelimit: redis error for %s: %v", key, err)
                return next(c)
            }
            res, ok := decodeBucket(reply)
            if !ok {
                l.Warnf(ctx, "ratelimit: unexpected script reply for %s: %#v", key, reply)
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if res.allowed {
                return next(c)
            }

            secs := int(math.Ceil(res.retry.Seconds()))
            h.Set("Retry-After", strconv.Itoa(secs))
            metrics.RateLimited(c.Path())
            l.Debugf(ctx, "ratelimit: blocked %s, retry in %s", key, res.retry)
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":       "too_many_requests",
                "message":     "rate limit exceeded",
                "retry_after": secs,
            })
        }
    }
}

func decodeBucket(reply any) (bucketResult, bool) {
    arr, ok := reply.([]any)
    if !ok || len(arr) != 3 {
        return bucketResult{}, false
    }
    allowed, ok1 := arr[0].(int64)
    remaining, ok2 := arr[1].(int64)
    waitMs, ok3 := arr[2].(int64)
    if !ok1 || !ok2 || !ok3 {
        return bucketResult{}, false
    }
    return bucketResult{
        allowed:   allowed == 1,
        remaining: remaining,
        retry:     time.Duration(max(waitMs, 0)) * time.Millisecond,
    }, true
}

// buildRateKey composes the bucket key.  Anonymous callers share the
// "anon" user slot, so the ip part is what separates them.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := UserID(c)
    if uid == "" {
        uid = "anon"
    }
    route := c.Request().Method + " " + c.Path()

    parts := []string{cfg.Prefix}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
