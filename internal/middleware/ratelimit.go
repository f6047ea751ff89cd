package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/iliyamo/galleryhub/internal/config"
)

// limiterScript refills the bucket continuously at rate tokens per
// millisecond and takes one token.  It returns {allowed, whole tokens
// left, milliseconds until the next token}.
var limiterScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local level = tonumber(redis.call('HGET', KEYS[1], 'level'))
local at = tonumber(redis.call('HGET', KEYS[1], 'at'))
if level == nil or at == nil then
  level, at = burst, now
end
if now > at then
  level = math.min(burst, level + (now - at) * rate)
  at = now
end

local ok, wait = 0, 0
if level >= 1 then
  ok = 1
  level = level - 1
elseif rate > 0 then
  wait = math.ceil((1 - level) / rate)
else
  wait = ttl * 1000
end

redis.call('HSET', KEYS[1], 'level', tostring(level), 'at', at)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, math.floor(level), wait}
`)

// NewTokenBucket limits requests per key (see buildRateKey) with a token
// bucket.  With a Redis client the bucket is shared by every instance and
// kept in a Lua script; without one each process keeps its own buckets.
// A Redis error lets the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	take := redisTake(cfg, rdb)
	if rdb == nil {
		take = newLocalBuckets(cfg).take
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			allowed, remaining, retry, err := take(c, key, time.Now())
			if err != nil {
				if cfg.Debug {
					c.Logger().Warnf("[ratelimit] key=%s: %v", key, err)
				}
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(retry.Seconds()))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					c.Logger().Infof("[ratelimit] block key=%s retry=%s", key, retry)
				}
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

type takeFunc func(c echo.Context, key string, now time.Time) (allowed bool, remaining int64, retry time.Duration, err error)

func redisTake(cfg config.RateLimitConfig, rdb *redis.Client) takeFunc {
	var perMs float64
	if ms := cfg.RefillInterval.Milliseconds(); ms > 0 {
		perMs = float64(cfg.RefillTokens) / float64(ms)
	}
	ttl := int64(cfg.TTL / time.Second)
	return func(c echo.Context, key string, now time.Time) (bool, int64, time.Duration, error) {
		res, err := limiterScript.Run(c.Request().Context(), rdb, []string{key},
			now.UnixMilli(), cfg.Capacity, strconv.FormatFloat(perMs, 'f', -1, 64), ttl).Int64Slice()
		if err != nil {
			return false, 0, 0, err
		}
		if len(res) != 3 {
			return false, 0, 0, fmt.Errorf("limiter script returned %d values", len(res))
		}
		return res[0] == 1, res[1], time.Duration(res[2]) * time.Millisecond, nil
	}
}

// localBuckets is the in-process fallback used when Redis is unavailable.
// Idle buckets are dropped after cfg.TTL.
type localBuckets struct {
	mu        sync.Mutex
	cfg       config.RateLimitConfig
	every     rate.Limit
	buckets   map[string]*localBucket
	lastSweep time.Time
}

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLocalBuckets(cfg config.RateLimitConfig) *localBuckets {
	return &localBuckets{
		cfg:     cfg,
		every:   rate.Limit(float64(cfg.RefillTokens) / cfg.RefillInterval.Seconds()),
		buckets: make(map[string]*localBucket),
	}
}

func (b *localBuckets) take(_ echo.Context, key string, now time.Time) (bool, int64, time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) > b.cfg.TTL {
		for k, v := range b.buckets {
			if now.Sub(v.seen) > b.cfg.TTL {
				delete(b.buckets, k)
			}
		}
		b.lastSweep = now
	}

	bk, ok := b.buckets[key]
	if !ok {
		bk = &localBucket{lim: rate.NewLimiter(b.every, b.cfg.Capacity)}
		b.buckets[key] = bk
	}
	bk.seen = now

	r := bk.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, 0, d, nil
	}
	return true, int64(bk.lim.TokensAt(now)), 0, nil
}

// buildRateKey joins the parts named by cfg.KeyStrategy, e.g. "ip_route"
// keys by client address and route.  An unknown strategy keys by all three.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	values := map[string]string{
		"ip":    ip,
		"user":  userID(c),
		"route": c.Request().Method + " " + c.Path(),
	}

	parts := []string{cfg.Prefix}
	for _, name := range strings.Split(strings.ToLower(cfg.KeyStrategy), "_") {
		v, ok := values[name]
		if !ok {
			return strings.Join([]string{cfg.Prefix, "ip", ip, "user", values["user"], "route", values["route"]}, ":")
		}
		parts = append(parts, name, v)
	}
	return strings.Join(parts, ":")
}
