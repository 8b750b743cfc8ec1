// Package lrucache is an in-process stand-in for the distributed cache, used
// when no Redis is configured. Entries carry their own absolute expiry.
package lrucache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/weathercache/internal/cache"
	"github.com/mohammed-shakir/weathercache/internal/core/observability"
)

type entry struct {
	val     []byte
	expires time.Time
}

type Cache struct {
	lru *lru.Cache[string, entry]
	now func() time.Time
}

var _ cache.Interface = (*Cache)(nil)

func New(size int) (*Cache, error) {
	if size <= 0 {
		size = 4096
	}
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("lru cache: %w", err)
	}
	return &Cache{lru: l, now: time.Now}, nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("lru get %q: %w", key, err)
	}
	start := time.Now()
	defer func() { observability.ObserveCacheOp("get", nil, time.Since(start).Seconds()) }()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.lru.Remove(key)
		return nil, false, nil
	}
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, true, nil
}

// Set with ttl <= 0 stores without expiry.
func (c *Cache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("lru set %q: %w", key, err)
	}
	start := time.Now()
	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.lru.Add(key, e)
	observability.ObserveCacheOp("set", nil, time.Since(start).Seconds())
	return nil
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("lru del %d keys: %w", len(keys), err)
	}
	for _, k := range keys {
		c.lru.Remove(k)
	}
	return nil
}

func (c *Cache) Ping(context.Context) error { return nil }

func (c *Cache) Len() int { return c.lru.Len() }
