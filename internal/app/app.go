// Package app wires the configured cache, store, providers and transports
// into a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/weathercache/internal/cache"
	"github.com/mohammed-shakir/weathercache/internal/cache/lrucache"
	"github.com/mohammed-shakir/weathercache/internal/cache/redisstore"
	"github.com/mohammed-shakir/weathercache/internal/core/config"
	"github.com/mohammed-shakir/weathercache/internal/core/health"
	"github.com/mohammed-shakir/weathercache/internal/core/httpclient"
	"github.com/mohammed-shakir/weathercache/internal/core/observability"
	"github.com/mohammed-shakir/weathercache/internal/core/server"
	"github.com/mohammed-shakir/weathercache/internal/events"
	"github.com/mohammed-shakir/weathercache/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/weathercache/internal/metrics"
	"github.com/mohammed-shakir/weathercache/internal/migrations"
	"github.com/mohammed-shakir/weathercache/internal/resolver"
	"github.com/mohammed-shakir/weathercache/internal/store"
	"github.com/mohammed-shakir/weathercache/internal/store/memory"
	"github.com/mohammed-shakir/weathercache/internal/store/postgres"
	"github.com/mohammed-shakir/weathercache/internal/weather"
	"github.com/mohammed-shakir/weathercache/internal/weather/providers"
)

// drainTimeout bounds how long shutdown waits for in-flight groups to write
// their results.
const drainTimeout = 10 * time.Second

type cachePinger interface {
	cache.Interface
	health.Pinger
}

type storePinger interface {
	store.Store
	health.Pinger
}

type App struct {
	cfg      config.Config
	log      *slog.Logger
	metrics  *metrics.Provider
	cache    cachePinger
	store    storePinger
	resolver *resolver.Resolver
	handler  http.Handler
	consumer *kafkaconsumer.Consumer
	closers  []func() error
}

// New builds every component named by cfg. On error, whatever was already
// opened is closed again.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, version string) (_ *App, err error) {
	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.metrics = metrics.Init(metrics.Config{
		Addr:  cfg.Metrics.Addr,
		Path:  cfg.Metrics.Path,
		Build: metrics.BuildInfo{Version: version},
	})
	observability.Init(a.metrics.Registerer(), cfg.Metrics.Enabled)
	observability.ExposeBuildInfo(version)

	if a.cache, err = a.openCache(ctx); err != nil {
		return nil, err
	}
	if a.store, err = a.openStore(); err != nil {
		return nil, err
	}

	var pub resolver.Publisher
	if cfg.Kafka.EventsEnabled {
		p, err := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.EventsQueue, log.With("component", "events"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		pub = p
	}

	a.resolver, err = resolver.New(resolver.Options{
		Cache:          a.cache,
		Store:          a.store,
		Providers:      BuildProviders(cfg.Providers, log),
		Logger:         log.With("component", "resolver"),
		Publisher:      pub,
		Debounce:       cfg.DebounceDelay,
		TTL:            cfg.Cache.TTL,
		CacheOpTimeout: cfg.Cache.OpTimeout,
		FetchTimeout:   cfg.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Kafka.InvalidationEnabled {
		a.consumer = kafkaconsumer.New(kafkaconsumer.FromKafka(cfg.Kafka), log.With("component", "invalidation"), a.cache)
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = a.metrics.Handler()
	} else {
		metricsHandler = http.NotFoundHandler()
	}
	a.handler = server.NewRouter(log, server.Deps{
		Resolver:  a.resolver,
		Metrics:   metricsHandler,
		MaxCities: cfg.MaxCities,
		Checks: []health.Check{
			{Name: "cache", Pinger: a.cache},
			{Name: "store", Pinger: a.store},
		},
	})
	return a, nil
}

func (a *App) openCache(ctx context.Context) (cachePinger, error) {
	switch a.cfg.Cache.Driver {
	case "memory":
		c, err := lrucache.New(a.cfg.Cache.LocalSize)
		if err != nil {
			return nil, fmt.Errorf("local cache: %w", err)
		}
		a.log.Info("cache ready", "driver", "memory", "size", a.cfg.Cache.LocalSize)
		return c, nil
	default:
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := redisstore.New(cctx, a.cfg.Cache.RedisAddr,
			redisstore.WithPoolSize(a.cfg.Cache.PoolSize),
			redisstore.WithReadTimeout(a.cfg.Cache.OpTimeout),
			redisstore.WithWriteTimeout(a.cfg.Cache.OpTimeout))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		a.log.Info("cache ready", "driver", "redis", "addr", a.cfg.Cache.RedisAddr)
		return c, nil
	}
}

func (a *App) openStore() (storePinger, error) {
	switch a.cfg.Store.Driver {
	case "memory":
		a.log.Info("store ready", "driver", "memory")
		return memory.New(0), nil
	default:
		db, err := postgres.Open(a.cfg.Store.DSN, a.cfg.Store.MaxOpenConns, a.cfg.Store.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		if err := migrations.Run(db, a.cfg.Store.AutoMigrate, a.log.With("component", "migrations")); err != nil {
			_ = db.Close()
			return nil, err
		}
		st, err := postgres.NewAdapter(db, a.log.With("component", "store"))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	}
}

// BuildProviders returns the upstream providers in their fixed call order.
func BuildProviders(cfg config.ProviderCfg, log *slog.Logger) []weather.Provider {
	client := httpclient.NewOutbound(cfg.HTTPTimeout)
	opts := func(baseURL, key string) providers.Options {
		return providers.Options{
			Client:  client,
			BaseURL: baseURL,
			APIKey:  key,
			Backoff: providers.BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: cfg.RetryInitial,
				MaxInterval:     cfg.RetryMax,
			},
			Breaker: providers.BreakerConfig{
				MaxRequests: cfg.BreakerMaxRequests,
				Interval:    cfg.BreakerInterval,
				Timeout:     cfg.BreakerTimeout,
			},
		}
	}
	if cfg.WeatherAPIKey == "" {
		log.Warn("provider has no api key, every fetch will fail", "provider", providers.WeatherAPIName)
	}
	if cfg.WeatherStackKey == "" {
		log.Warn("provider has no api key, every fetch will fail", "provider", providers.WeatherStackName)
	}
	return []weather.Provider{
		providers.NewWeatherAPI(opts(cfg.WeatherAPIURL, cfg.WeatherAPIKey)),
		providers.NewWeatherStack(opts(cfg.WeatherStackURL, cfg.WeatherStackKey)),
	}
}

func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Resolver() *resolver.Resolver { return a.resolver }

// Run serves until ctx is cancelled or a component fails, then waits for
// in-flight groups before returning.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, a.cfg.Addr, a.handler, a.log) })
	if a.cfg.Metrics.Enabled {
		g.Go(func() error { return a.metrics.Serve(gctx, a.log) })
	}
	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Start(gctx) })
	}
	err := g.Wait()

	drained := make(chan struct{})
	go func() {
		a.resolver.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		a.log.Warn("shutdown with coalescing groups still in flight", "groups", a.resolver.ActiveGroups())
	}
	return err
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
