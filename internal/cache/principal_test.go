package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/galleryhub/internal/auth"
	"github.com/iliyamo/galleryhub/internal/model"
)

func sample(id string) auth.Claims {
	return auth.Claims{
		Version:   auth.ClaimsVersion,
		AccountID: id,
		Email:     "ada@example.com",
		Name:      "Ada Lovelace",
		Role:      model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
		},
	}
}

func TestLocalPrincipals(t *testing.T) {
	ctx := context.Background()
	c := NewLocalPrincipals(8, time.Minute)

	_, ok := c.Get(ctx, "a1")
	assert.False(t, ok)

	c.Set(ctx, sample("a1"))
	got, ok := c.Get(ctx, "a1")
	require.True(t, ok)
	assert.Equal(t, model.RoleAdmin, got.Role)

	c.Invalidate(ctx, "a1")
	_, ok = c.Get(ctx, "a1")
	assert.False(t, ok)
}

func TestLocalPrincipalsExpire(t *testing.T) {
	ctx := context.Background()
	c := NewLocalPrincipals(8, 20*time.Millisecond)
	c.Set(ctx, sample("a1"))
	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "a1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

// TestRedisPrincipals needs a server; set REDIS_TEST_ADDR to run it.
func TestRedisPrincipals(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	c := NewRedisPrincipals(rdb, time.Minute, nil)
	id := uuid.NewString()
	t.Cleanup(func() { c.Invalidate(ctx, id) })

	c.Set(ctx, sample(id))
	got, ok := c.Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, id, got.AccountID)
	assert.Equal(t, model.RoleAdmin, got.Role)
	assert.Equal(t, sample(id).ExpiresAt.Unix(), got.ExpiresAt.Unix())

	c.Invalidate(ctx, id)
	_, ok = c.Get(ctx, id)
	assert.False(t, ok)
}

func TestRedisPrincipalsUnreachableIsMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewRedisPrincipals(rdb, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, sample("a1"))
	_, ok := c.Get(ctx, "a1")
	assert.False(t, ok)
}
