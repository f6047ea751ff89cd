package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAuthPolicyDefaults(t *testing.T) {
	p, err := LoadAuthPolicy()
	require.NoError(t, err)
	assert.Equal(t, 5, p.LockThreshold)
	assert.Equal(t, 15*time.Minute, p.LockDuration)
	assert.Equal(t, 30*24*time.Hour, p.SessionMaxAge)
	assert.Equal(t, "refresh", p.ClaimsMode)
	assert.Equal(t, time.Hour, p.ResetTokenTTL)
	assert.True(t, p.CookieSecure)
	assert.False(t, p.BootstrapAdmin())
}

func TestLoadAuthPolicyOverrides(t *testing.T) {
	t.Setenv("LOCK_THRESHOLD", "3")
	t.Setenv("LOCK_DURATION_MIN", "1")
	t.Setenv("SESSION_MAX_AGE_DAYS", "7")
	t.Setenv("CLAIMS_MODE", "trust")
	t.Setenv("SESSION_COOKIE_SECURE", "off")
	t.Setenv("ADMIN_EMAIL", "root@example.com")
	t.Setenv("ADMIN_PASSWORD", "s3cret-pass")

	p, err := LoadAuthPolicy()
	require.NoError(t, err)
	assert.Equal(t, 3, p.LockThreshold)
	assert.Equal(t, time.Minute, p.LockDuration)
	assert.Equal(t, 7*24*time.Hour, p.SessionMaxAge)
	assert.Equal(t, "trust", p.ClaimsMode)
	assert.False(t, p.CookieSecure)
	assert.True(t, p.BootstrapAdmin())
}

func TestLoadAuthPolicyRejectsInvalid(t *testing.T) {
	cases := map[string][2]string{
		"zero threshold": {"LOCK_THRESHOLD", "0"},
		"zero duration":  {"LOCK_DURATION_MIN", "0"},
		"zero max age":   {"SESSION_MAX_AGE_DAYS", "0"},
		"unknown mode":   {"CLAIMS_MODE", "sometimes"},
		"admin half set": {"ADMIN_EMAIL", "root@example.com"},
		"negative ttl":   {"CLAIMS_CACHE_TTL", "-1s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadAuthPolicy()
			assert.ErrorContains(t, err, kv[0])
		})
	}
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	c := LoadRateLimitConfig()
	assert.Equal(t, 5, c.Capacity)
	assert.Equal(t, 1, c.RefillTokens)
	assert.Equal(t, 2*time.Second, c.RefillInterval)
	assert.Equal(t, 10*time.Second, c.TTL, "ttl is raised to five refill intervals")

	login := LoadLoginRateLimitConfig()
	assert.Equal(t, 10, login.Capacity)
	assert.Equal(t, "ip_route", login.KeyStrategy)
	assert.Equal(t, "galleryhub:rl:login", login.Prefix)
}

func TestLoadCacheAndStorageConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("S3_BUCKET", "artworks")
	t.Setenv("UPLOAD_ALLOWED_TYPES", "image/png")

	c := LoadCacheConfig()
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, c.Methods)
	assert.Equal(t, 30*time.Second, c.TTL)

	s := LoadStorageConfig()
	assert.True(t, s.Enabled())
	assert.Equal(t, []string{"image/png"}, s.AllowedTypes)
	assert.Equal(t, int64(10<<20), s.MaxUploadBytes)
}

func TestLoadRedisConfigPrefersHostPort(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	assert.Equal(t, "redis:6379", LoadRedisConfig().Addr)
}
