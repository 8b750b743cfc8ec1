package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/weathercache/internal/app"
	"github.com/mohammed-shakir/weathercache/internal/core/config"
	"github.com/mohammed-shakir/weathercache/internal/logger"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "weatherd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting weatherd",
		"addr", cfg.Addr,
		"version", Version,
		"cache", cfg.Cache.Driver,
		"store", cfg.Store.Driver,
		"debounce", cfg.DebounceDelay.String(),
		"events", cfg.Kafka.EventsEnabled,
		"invalidation", cfg.Kafka.InvalidationEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLog, Version)
	if err != nil {
		appLog.Error("startup failed", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Error("close failed", "err", err)
		}
	}()

	if err := a.Run(ctx); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
