// Package observability holds the Prometheus collectors recorded across the
// resolution pipeline.
package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Distributed cache operations by result.",
		},
		[]string{"op", "result"},
	)

	cacheOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Latency of distributed cache operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	tierResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_tier_results_total",
			Help: "Lookups per tier by outcome.",
		},
		[]string{"tier", "outcome"},
	)

	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_provider_requests_total",
			Help: "Provider fetches by outcome.",
		},
		[]string{"provider", "outcome"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weather_provider_latency_seconds",
			Help:    "Latency of provider fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"provider"},
	)

	groupSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weather_coalesced_requests",
			Help:    "Requests served by a single aggregated fetch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	groupOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_group_results_total",
			Help: "Coalescing group completions by outcome.",
		},
		[]string{"outcome"},
	)

	groupsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weather_groups_active",
			Help: "Coalescing groups currently registered.",
		},
	)

	invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_invalidations_total",
			Help: "Cache invalidation messages by outcome.",
		},
		[]string{"outcome"},
	)

	kafkaConsumerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weathercache_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		cacheOpTotal, cacheOpDuration,
		tierResults,
		providerRequests, providerLatency,
		groupSize, groupOutcomes, groupsActive,
		invalidations, kafkaConsumerErrors,
		buildInfo,
	}
}

// Init registers every collector on reg. With on=false, or a nil registerer,
// observations are still recorded but never exported.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if !on || reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func Enabled() bool { return enabled.Load() }

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	cacheOpTotal.WithLabelValues(op, res).Inc()
	cacheOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

// tier is cache, store or group. Cache and store report hit, miss, error or
// invalid; group reports joined or late.
func ObserveTier(tier, outcome string) {
	tierResults.WithLabelValues(tier, outcome).Inc()
}

func ObserveProviderFetch(provider string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	providerRequests.WithLabelValues(provider, outcome).Inc()
	providerLatency.WithLabelValues(provider).Observe(durationSeconds)
}

// ObserveGroup records a finished coalescing group. outcome is resolved,
// failed or error.
func ObserveGroup(outcome string, requests int) {
	groupOutcomes.WithLabelValues(outcome).Inc()
	groupSize.Observe(float64(requests))
}

func AddActiveGroups(delta int) {
	groupsActive.Add(float64(delta))
}

func ObserveInvalidation(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	invalidations.WithLabelValues(outcome).Inc()
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
