package kafkaconsumer

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultDedupeSize = 4096

// tsDedupe remembers the newest applied invalidation timestamp per cache key.
type tsDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newTSDedupe(size int) *tsDedupe {
	if size <= 0 {
		size = defaultDedupeSize
	}
	c, _ := lru.New[string, int64](size)
	return &tsDedupe{lru: c}
}

// stale reports whether an invalidation at ts is not newer than one already applied.
func (d *tsDedupe) stale(key string, ts time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return ok && ts.UnixNano() <= last
}

func (d *tsDedupe) applied(key string, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && ts.UnixNano() <= last {
		return
	}
	d.lru.Add(key, ts.UnixNano())
}
