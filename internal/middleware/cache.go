package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/galleryhub/internal/config"
)

// teeWriter forwards the response and keeps a copy of up to limit bytes.
type teeWriter struct {
	http.ResponseWriter
	status    int
	body      bytes.Buffer
	limit     int64
	truncated bool
}

func (w *teeWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if !w.truncated {
		if w.limit > 0 && int64(w.body.Len()+len(b)) > w.limit {
			w.truncated = true
			w.body.Reset()
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// cacheKeyFrom hashes the parts of the request named by cfg.KeyStrategy.
// Query parameters are sorted, so ?a=1&b=2 and ?b=2&a=1 share an entry.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	query := r.URL.Query().Encode()

	var id string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		id = c.Path()
	case "method_route_query":
		id = r.Method + " " + r.URL.Path + "?" + query
	default: // route_query
		id = r.URL.Path + "?" + query
	}
	sum := sha256.Sum256([]byte(id))
	return cfg.Prefix + ":" + hex.EncodeToString(sum[:])
}

// cachedResponse is stored as a Redis hash: status, header (JSON) and body.
type cachedResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r cachedResponse) fields() (map[string]any, error) {
	hdr, err := json.Marshal(r.Header)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": r.Status, "header": hdr, "body": r.Body}, nil
}

func parseCached(m map[string]string) (cachedResponse, bool) {
	status, err := strconv.Atoi(m["status"])
	if err != nil || status < 100 {
		return cachedResponse{}, false
	}
	out := cachedResponse{Status: status, Header: http.Header{}, Body: []byte(m["body"])}
	if h := m["header"]; h != "" {
		if err := json.Unmarshal([]byte(h), &out.Header); err != nil {
			return cachedResponse{}, false
		}
	}
	return out, true
}

// NewRedisCache caches successful responses of the public gallery in
// Redis, headers included.  Requests carrying a session are never served
// from or written to the cache since their responses may be personal.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] || userID(c) != "guest" {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg, c)

			if m, err := rdb.HGetAll(ctx, key).Result(); err == nil && len(m) > 0 {
				if hit, ok := parseCached(m); ok {
					return replay(c, hit)
				}
			}

			w := &teeWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
			c.Response().Writer = w
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if w.status != http.StatusOK || w.truncated {
				return nil
			}

			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			hdr.Del(echo.HeaderContentLength)
			hdr.Del(echo.HeaderXRequestID)
			fields, err := cachedResponse{Status: w.status, Header: hdr, Body: w.body.Bytes()}.fields()
			if err != nil {
				return nil
			}
			wctx := context.WithoutCancel(ctx)
			_, _ = rdb.TxPipelined(wctx, func(p redis.Pipeliner) error {
				p.HSet(wctx, key, fields)
				p.Expire(wctx, key, ttl)
				return nil
			})
			return nil
		}
	}
}

func replay(c echo.Context, r cachedResponse) error {
	h := c.Response().Header()
	for k, vals := range r.Header {
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set("X-Cache", "HIT")
	c.Response().WriteHeader(r.Status)
	_, err := c.Response().Write(r.Body)
	return err
}

// PurgeCache drops every cached response under cfg.Prefix.  Moderation
// calls it so that a rejected artwork leaves the public gallery at once.
func PurgeCache(ctx context.Context, cfg config.CacheConfig, rdb *redis.Client) error {
	if rdb == nil {
		return nil
	}
	iter := rdb.Scan(ctx, 0, cfg.Prefix+":*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return rdb.Unlink(ctx, keys...).Err()
}
