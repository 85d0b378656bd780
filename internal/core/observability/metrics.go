// Package observability registers and updates the service's Prometheus
// metrics.
package observability

import (
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
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
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

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facility_fetches_total",
			Help: "Facility fetches by layer and outcome.",
		},
		[]string{"layer", "outcome"},
	)

	syncDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewport_sync_decisions_total",
			Help: "Viewport sync engine decisions by layer.",
		},
		[]string{"layer", "decision"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Facility cache results by outcome.",
		},
		[]string{"outcome"},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of live map sessions.",
		},
	)

	analyticsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_events_dropped_total",
			Help: "Analytics events dropped because the sink was saturated.",
		},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

// IncFetch records a fetch outcome: "ok", "network", "timeout", "parse".
func IncFetch(layer, outcome string) {
	fetchesTotal.WithLabelValues(layer, outcome).Inc()
}

// IncSyncDecision records an engine decision: "fetch", "skipped",
// "stale_discarded".
func IncSyncDecision(layer, decision string) {
	syncDecisionsTotal.WithLabelValues(layer, decision).Inc()
}

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func SessionOpened() { sessionsActive.Inc() }
func SessionClosed() { sessionsActive.Dec() }

func IncAnalyticsDropped() { analyticsDroppedTotal.Inc() }

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
