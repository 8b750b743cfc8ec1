package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/weathercache/internal/core/health"
	middleware "github.com/mohammed-shakir/weathercache/internal/core/middleware"
	"github.com/mohammed-shakir/weathercache/internal/core/router"
)

type Deps struct {
	Resolver  router.Resolver
	Metrics   http.Handler // nil falls back to the default Prometheus registry
	Checks    []health.Check
	MaxCities int
}

// NewRouter mounts the probes, metrics and the temperature API.
func NewRouter(logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	metrics := d.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, d.Checks...))
	r.Method(http.MethodGet, "/metrics", metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/temperature", router.HandleTemperature(logger, d.Resolver))
		r.Get("/temperatures", router.HandleTemperatures(logger, d.Resolver, d.MaxCities))
	})
	return r
}

// Run serves h on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// tier-4 callers wait out the debounce window plus provider latency
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
