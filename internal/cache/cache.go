// Package cache defines the distributed cache tier consulted before the
// persistent store.
package cache

import (
	"context"
	"time"
)

// Interface is a key to bytes store with per-entry absolute expiration.
// Get reports found=false for absent or expired keys.
type Interface interface {
	Get(ctx context.Context, key string) (val []byte, found bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Pinger is implemented by caches that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
