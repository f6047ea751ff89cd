// Package cache keeps refreshed session principals and the platform
// settings for a bounded time so hot paths do not read the database on
// every request. Only the public principal is cached; the lockout counter
// and lock state are always read from the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/galleryhub/internal/auth"
	"github.com/iliyamo/galleryhub/internal/logging"
)

const defaultPrefix = "galleryhub:principal"

// RedisPrincipals is an auth.PrincipalCache shared by every instance.
type RedisPrincipals struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	log    logging.Logger
}

func NewRedisPrincipals(rdb redis.Cmdable, ttl time.Duration, log logging.Logger) *RedisPrincipals {
	if log == nil {
		log = logging.Nop()
	}
	return &RedisPrincipals{rdb: rdb, ttl: ttl, prefix: defaultPrefix, log: log}
}

func (r *RedisPrincipals) key(id string) string { return r.prefix + ":" + id }

// Get treats every Redis failure as a miss.
func (r *RedisPrincipals) Get(ctx context.Context, accountID string) (auth.Claims, bool) {
	bs, err := r.rdb.Get(ctx, r.key(accountID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn(ctx, "principal cache get failed", "account_id", accountID, "err", err)
		}
		return auth.Claims{}, false
	}
	var c auth.Claims
	if err := json.Unmarshal(bs, &c); err != nil || c.Version != auth.ClaimsVersion {
		return auth.Claims{}, false
	}
	return c, true
}

func (r *RedisPrincipals) Set(ctx context.Context, c auth.Claims) {
	bs, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, r.key(c.AccountID), bs, r.ttl).Err(); err != nil {
		r.log.Warn(ctx, "principal cache set failed", "account_id", c.AccountID, "err", err)
	}
}

func (r *RedisPrincipals) Invalidate(ctx context.Context, accountID string) {
	if err := r.rdb.Del(ctx, r.key(accountID)).Err(); err != nil {
		r.log.Warn(ctx, "principal cache invalidate failed", "account_id", accountID, "err", err)
	}
}

// LocalPrincipals is the in-process auth.PrincipalCache used when Redis is
// not configured.  Invalidation only reaches this process, so with more
// than one instance an admin change may take up to the TTL to apply.
type LocalPrincipals struct {
	lru *expirable.LRU[string, auth.Claims]
}

func NewLocalPrincipals(size int, ttl time.Duration) *LocalPrincipals {
	return &LocalPrincipals{lru: expirable.NewLRU[string, auth.Claims](size, nil, ttl)}
}

func (l *LocalPrincipals) Get(_ context.Context, accountID string) (auth.Claims, bool) {
	return l.lru.Get(accountID)
}

func (l *LocalPrincipals) Set(_ context.Context, c auth.Claims) { l.lru.Add(c.AccountID, c) }

func (l *LocalPrincipals) Invalidate(_ context.Context, accountID string) { l.lru.Remove(accountID) }

var (
	_ auth.PrincipalCache = (*RedisPrincipals)(nil)
	_ auth.PrincipalCache = (*LocalPrincipals)(nil)
)
