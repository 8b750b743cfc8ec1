// Package resolver resolves a location's current temperature through the
// distributed cache, the persistent store and, failing both, a debounced
// aggregated fetch across every configured provider.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mohammed-shakir/weathercache/internal/cache"
	"github.com/mohammed-shakir/weathercache/internal/cache/keys"
	"github.com/mohammed-shakir/weathercache/internal/core/observability"
	"github.com/mohammed-shakir/weathercache/internal/logger"
	"github.com/mohammed-shakir/weathercache/internal/store"
	"github.com/mohammed-shakir/weathercache/internal/weather"
)

const (
	DefaultDebounce       = 5 * time.Second
	DefaultTTL            = 10 * time.Minute
	DefaultCacheOpTimeout = 250 * time.Millisecond
	DefaultFetchTimeout   = 30 * time.Second
)

// Publisher receives completed resolutions. Publish must not block.
type Publisher interface {
	Publish(weather.Resolution)
}

type Options struct {
	Cache     cache.Interface
	Store     store.Store
	Providers []weather.Provider
	Logger    *slog.Logger
	Publisher Publisher

	Debounce       time.Duration
	TTL            time.Duration
	CacheOpTimeout time.Duration
	FetchTimeout   time.Duration
}

type Resolver struct {
	cache     cache.Interface
	store     store.Store
	providers []weather.Provider
	log       *slog.Logger
	pub       Publisher

	debounce       time.Duration
	ttl            time.Duration
	cacheOpTimeout time.Duration
	fetchTimeout   time.Duration

	now    func() time.Time
	groups *registry
	wg     sync.WaitGroup
}

func New(opts Options) (*Resolver, error) {
	if opts.Cache == nil {
		return nil, errors.New("resolver: cache is required")
	}
	if opts.Store == nil {
		return nil, errors.New("resolver: store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Resolver{
		cache:          opts.Cache,
		store:          opts.Store,
		providers:      append([]weather.Provider(nil), opts.Providers...),
		log:            opts.Logger,
		pub:            opts.Publisher,
		debounce:       orDefault(opts.Debounce, DefaultDebounce),
		ttl:            orDefault(opts.TTL, DefaultTTL),
		cacheOpTimeout: orDefault(opts.CacheOpTimeout, DefaultCacheOpTimeout),
		fetchTimeout:   orDefault(opts.FetchTimeout, DefaultFetchTimeout),
		now:            time.Now,
		groups:         newRegistry(),
	}
	return r, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Resolve returns the temperature for location, or ok=false when no tier
// could produce one. It never panics and never reports an error; failures
// below it are logged and degrade to ok=false.
//
// ctx bounds the cache and store lookups and how long the caller waits on a
// coalescing group. Cancelling it does not cancel the group's fetch.
func (r *Resolver) Resolve(ctx context.Context, location string) (temp float64, ok bool) {
	loc := keys.Normalize(location)
	log := r.log.With("location", loc)
	if id := logger.RequestID(ctx); id != "" {
		log = log.With("request_id", id)
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("resolve failed", "panic", fmt.Sprint(rec))
			temp, ok = 0, false
		}
	}()

	if loc == "" {
		return 0, false
	}

	for {
		if v, hit := r.fromCache(ctx, loc, log); hit {
			return v, true
		}
		if v, hit := r.fromStore(ctx, loc, log); hit {
			return v, true
		}

		created := false
		g := r.groups.getOrCreate(loc, func() *group {
			created = true
			return r.startGroup(loc)
		})
		if created || g.join() {
			observability.ObserveTier("group", "joined")
			return g.wait(ctx)
		}

		// The live group is already fetching. Wait for it to close, then
		// look again: its result is in the cache by then, or a new group
		// will be created.
		observability.ObserveTier("group", "late")
		if !g.closed(ctx) {
			return 0, false
		}
	}
}

func (r *Resolver) fromCache(ctx context.Context, loc string, log *slog.Logger) (float64, bool) {
	cctx, cancel := context.WithTimeout(ctx, r.cacheOpTimeout)
	defer cancel()

	raw, found, err := r.cache.Get(cctx, keys.Key(loc))
	switch {
	case err != nil:
		observability.ObserveTier("cache", "error")
		log.Warn("cache read failed", "tier", "cache", "err", err)
		return 0, false
	case !found:
		observability.ObserveTier("cache", "miss")
		return 0, false
	}

	v, err := keys.DecodeTemperature(raw)
	if err != nil {
		observability.ObserveTier("cache", "invalid")
		log.Warn("cache value unparsable", "tier", "cache", "err", err)
		return 0, false
	}
	observability.ObserveTier("cache", "hit")
	log.Debug("resolved from cache", "temperature", v)
	return v, true
}

func (r *Resolver) fromStore(ctx context.Context, loc string, log *slog.Logger) (float64, bool) {
	rec, err := r.store.Latest(ctx, loc)
	if errors.Is(err, store.ErrNotFound) {
		observability.ObserveTier("store", "miss")
		return 0, false
	}
	if err != nil {
		observability.ObserveTier("store", "error")
		log.Warn("store read failed", "tier", "store", "err", err)
		return 0, false
	}
	observability.ObserveTier("store", "hit")
	log.Debug("resolved from store", "temperature", rec.Temperature, "recorded_at", rec.Timestamp)

	// Repopulate the cache before returning; a failed write only costs the
	// next caller a store read.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cacheOpTimeout)
	defer cancel()
	if err := r.cache.Set(wctx, keys.Key(loc), keys.EncodeTemperature(rec.Temperature), r.ttl); err != nil {
		log.Warn("cache write failed", "tier", "cache", "err", err)
	}
	return rec.Temperature, true
}

// startGroup is called under the registry shard lock. The creating caller
// is joined before the timer is armed, so even a debounce shorter than the
// lock hand-off never fires a group nobody waits on.
func (r *Resolver) startGroup(loc string) *group {
	g := newGroup(loc, r.now())
	g.join()
	r.wg.Add(1)
	observability.AddActiveGroups(1)
	time.AfterFunc(r.debounce, func() { r.fire(g) })
	return g
}

// fire runs once per group on the debounce timer's goroutine, detached from
// every caller.
func (r *Resolver) fire(g *group) {
	defer r.wg.Done()
	log := r.log.With("location", g.location)

	var (
		mean    float64
		ok      bool
		outcome = "failed"
	)
	joined := g.beginFetch()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("coalescing group failed", "panic", fmt.Sprint(rec))
			mean, ok, outcome = 0, false, "error"
		}
		g.settle(mean, ok)
		r.groups.evict(g.location, g)
		g.broadcast()
		observability.AddActiveGroups(-1)
		observability.ObserveGroup(outcome, joined)
		log.Debug("group closed", "outcome", outcome, "requests", joined,
			"age", time.Since(g.created).String())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
	defer cancel()

	readings := r.fetchAll(ctx, g.location, log)
	avg, have := weather.Mean(readings)
	if !have {
		log.Warn("all providers failed", "providers", len(r.providers))
		return
	}

	r.writeBack(g.location, avg, log)
	mean, ok, outcome = avg, true, "resolved"

	if r.pub != nil {
		r.pub.Publish(weather.Resolution{
			Location:    g.location,
			Temperature: avg,
			Providers:   weather.Names(readings),
			At:          r.now().UTC(),
		})
	}
}

// fetchAll asks every provider in order. One provider failing, panicking or
// returning a non-finite value never affects the others.
func (r *Resolver) fetchAll(ctx context.Context, loc string, log *slog.Logger) []weather.Reading {
	out := make([]weather.Reading, 0, len(r.providers))
	for _, p := range r.providers {
		start := time.Now()
		rd, err := safeFetch(ctx, p, loc)
		observability.ObserveProviderFetch(p.Name(), err, time.Since(start).Seconds())
		if err != nil {
			log.Warn("provider fetch failed", "provider", p.Name(), "err", err)
			continue
		}
		if rd.Provider == "" {
			rd.Provider = p.Name()
		}
		out = append(out, rd)
	}
	return out
}

func safeFetch(ctx context.Context, p weather.Provider, loc string) (rd weather.Reading, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("provider panicked: %v", rec)
		}
	}()
	rd, err = p.Fetch(ctx, loc)
	if err == nil && (math.IsNaN(rd.Temperature) || math.IsInf(rd.Temperature, 0)) {
		err = fmt.Errorf("non-finite temperature %v", rd.Temperature)
	}
	return rd, err
}

// writeBack stores the aggregate in both tiers. Failures are logged only;
// the value already computed still reaches every waiter. The writes get
// their own deadlines so slow providers cannot starve them.
func (r *Resolver) writeBack(loc string, temp float64, log *slog.Logger) {
	cctx, cancel := context.WithTimeout(context.Background(), r.cacheOpTimeout)
	err := r.cache.Set(cctx, keys.Key(loc), keys.EncodeTemperature(temp), r.ttl)
	cancel()
	if err != nil {
		log.Warn("cache write failed", "tier", "cache", "err", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
	defer cancel()
	rec := store.Record{Location: loc, Temperature: temp, Timestamp: r.now().UTC()}
	if err := r.store.Append(sctx, rec); err != nil {
		log.Error("store write failed", "tier", "store", "err", err)
	}
}

// Wait blocks until every group started so far has closed.
func (r *Resolver) Wait() { r.wg.Wait() }

// ActiveGroups reports how many locations currently have a live group.
func (r *Resolver) ActiveGroups() int { return r.groups.Len() }
