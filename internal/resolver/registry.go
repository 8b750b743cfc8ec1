package resolver

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const numShards = 64

// registry maps a normalized location to its live group. There is at most
// one entry per location at any instant.
type registry struct {
	shards [numShards]shard
}

type shard struct {
	mu sync.Mutex
	m  map[string]*group
}

func newRegistry() *registry {
	r := &registry{}
	for i := range r.shards {
		r.shards[i].m = make(map[string]*group)
	}
	return r
}

// getOrCreate returns the live group for location, calling create under the
// shard lock when there is none.
func (r *registry) getOrCreate(location string, create func() *group) *group {
	s := r.pick(location)
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.m[location]; ok {
		return g
	}
	g := create()
	s.m[location] = g
	return g
}

// evict drops the mapping only if it still points at g, so a stale group can
// never remove its successor. Redundant calls are no-ops.
func (r *registry) evict(location string, g *group) {
	s := r.pick(location)
	s.mu.Lock()
	if cur, ok := s.m[location]; ok && cur == g {
		delete(s.m, location)
	}
	s.mu.Unlock()
}

func (r *registry) lookup(location string) (*group, bool) {
	s := r.pick(location)
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.m[location]
	return g, ok
}

func (r *registry) pick(location string) *shard {
	h := xxhash.Sum64String(location)
	return &r.shards[h&(numShards-1)]
}

func (r *registry) Len() int {
	total := 0
	for i := range r.shards {
		r.shards[i].mu.Lock()
		total += len(r.shards[i].m)
		r.shards[i].mu.Unlock()
	}
	return total
}
