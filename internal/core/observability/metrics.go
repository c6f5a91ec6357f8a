// Package observability holds the process-wide Prometheus collectors.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~80s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	manifestFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manifest_fetches_total",
			Help: "Manifest fetch attempts by outcome.",
		},
		[]string{"outcome"},
	)

	manifestLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manifest_lookups_total",
			Help: "Manifest resolutions by source (cached, fetched, shared).",
		},
		[]string{"source"},
	)

	unknownTypes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_unknown_types_total",
			Help: "Requested feature types missing from the manifest.",
		},
		[]string{"type"},
	)

	planPartitions = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_plan_partitions",
			Help:    "Number of partitions selected per plan.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	retrievalSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrieval_duration_seconds",
			Help:    "Per-type retrieval duration by outcome.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"type", "outcome"},
	)

	rowsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_rows_total",
			Help: "Rows encoded into artifacts.",
		},
		[]string{"type"},
	)

	artifactsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_artifacts_total",
			Help: "Artifacts handed to a delivery sink.",
		},
		[]string{"sink", "outcome"},
	)

	artifactCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_cache_results_total",
			Help: "Artifact cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Redis operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	kafkaErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Invalidation consumer errors by kind.",
		},
		[]string{"kind"},
	)

	invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manifest_invalidations_total",
			Help: "Manifest invalidations by source and result.",
		},
		[]string{"source", "result"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		manifestFetches, manifestLookups, unknownTypes, planPartitions,
		retrievalSeconds, rowsEmitted, artifactsDelivered, artifactCache,
		cacheOpSeconds, kafkaErrors, invalidations, buildInfo,
	}
}

// Init additionally registers every collector on reg; the default registry
// always carries them.
func Init(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ObserveManifestFetch(err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	manifestFetches.WithLabelValues(outcome).Inc()
	upstreamLatencySeconds.WithLabelValues("manifest").Observe(durationSeconds)
}

func IncManifestLookup(source string) {
	manifestLookups.WithLabelValues(source).Inc()
}

func IncUnknownType(t string) {
	unknownTypes.WithLabelValues(t).Inc()
}

func ObservePlanPartitions(n int) {
	planPartitions.Observe(float64(n))
}

func ObserveRetrieval(t, outcome string, durationSeconds float64) {
	retrievalSeconds.WithLabelValues(t, outcome).Observe(durationSeconds)
}

func AddRowsEmitted(t string, n int) {
	if n <= 0 {
		return
	}
	rowsEmitted.WithLabelValues(t).Add(float64(n))
}

func IncArtifactDelivered(sink string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	artifactsDelivered.WithLabelValues(sink, outcome).Inc()
}

func IncArtifactCache(outcome string) {
	artifactCache.WithLabelValues(outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	cacheOpSeconds.WithLabelValues(op, res).Observe(durationSeconds)
}

func IncKafkaConsumerError(kind string) {
	kafkaErrors.WithLabelValues(kind).Inc()
}

func ObserveInvalidation(source, result string) {
	invalidations.WithLabelValues(source, result).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
