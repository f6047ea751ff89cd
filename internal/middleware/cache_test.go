package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/galleryhub/internal/config"
)

func TestCachedResponseFields(t *testing.T) {
	in := cachedResponse{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{"items":[]}`),
	}
	fields, err := in.fields()
	require.NoError(t, err)

	// what HGETALL hands back
	m := map[string]string{}
	for k, v := range fields {
		switch v := v.(type) {
		case int:
			m[k] = strconv.Itoa(v)
		case []byte:
			m[k] = string(v)
		}
	}
	out, ok := parseCached(m)
	require.True(t, ok)
	assert.Equal(t, in, out)

	_, ok = parseCached(map[string]string{"body": "x"})
	assert.False(t, ok)
	_, ok = parseCached(map[string]string{"status": "200", "header": "{"})
	assert.False(t, ok)
}

func TestCacheKeyIncludesQuery(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "gh:cache", KeyStrategy: "route_query"}
	key := func(target string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/artworks")
		return cacheKeyFrom(cfg, c)
	}
	assert.Equal(t, key("/v1/artworks?q=sun&tag=oil"), key("/v1/artworks?tag=oil&q=sun"))
	assert.NotEqual(t, key("/v1/artworks?q=sun"), key("/v1/artworks?q=moon"))
	assert.Regexp(t, `^gh:cache:[0-9a-f]{64}$`, key("/v1/artworks"))

	cfg.KeyStrategy = "route"
	assert.Equal(t, key("/v1/artworks?q=sun"), key("/v1/artworks?q=moon"))
}

func TestTeeWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &teeWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = w.Write([]byte("abc"))
	assert.False(t, w.truncated)
	_, _ = w.Write([]byte("def"))
	assert.True(t, w.truncated)
	assert.Zero(t, w.body.Len())
	assert.Equal(t, "abcdef", rec.Body.String())
}

func TestRedisCacheDisabledWithoutClient(t *testing.T) {
	e := echo.New()
	e.GET("/v1/artworks", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil))
	rec := do(e, "/v1/artworks", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestRedisCacheHitAndPurge(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{"GET": true},
		TTL:          time.Minute,
		Prefix:       "test:cache:" + strconv.FormatInt(time.Now().UnixNano(), 36),
		MaxBodyBytes: 1 << 10,
	}
	calls := 0
	e := echo.New()
	e.GET("/v1/artworks", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}, NewRedisCache(cfg, rdb))

	first := do(e, "/v1/artworks?q=sun", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := do(e, "/v1/artworks?q=sun", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Contains(t, second.Header().Get(echo.HeaderContentType), "application/json")
	assert.Equal(t, 1, calls)

	require.NoError(t, PurgeCache(t.Context(), cfg, rdb))
	assert.Equal(t, "MISS", do(e, "/v1/artworks?q=sun", nil).Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}
