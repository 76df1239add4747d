// Package observability holds the Prometheus collectors of the tile service.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

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
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	storeQueryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Latency of data source queries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"op"},
	)

	storeOpensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "store_opens_total",
			Help: "Data source handles opened.",
		},
	)

	storeOpenHandles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_open_handles",
			Help: "Data source handles currently open across all workers.",
		},
	)

	tileBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tile_bytes_total",
			Help: "Tile payload bytes read from data sources.",
		},
	)

	poolQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pool_queue_depth",
			Help: "Requests admitted and waiting for a free worker.",
		},
	)

	poolBusyWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pool_busy_workers",
			Help: "Workers currently executing a request.",
		},
	)

	poolJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_jobs_total",
			Help: "Jobs handled by the worker pool by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers the collectors with reg. Until then observations are
// recorded but not exported.
func Init(reg prometheus.Registerer) {
	reg.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		storeQueryDurationSeconds,
		storeOpensTotal,
		storeOpenHandles,
		tileBytesTotal,
		poolQueueDepth,
		poolBusyWorkers,
		poolJobsTotal,
	)
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveStoreQuery(op string, durationSeconds float64) {
	storeQueryDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncStoreOpen() { storeOpensTotal.Inc() }

func AddOpenHandles(delta float64) { storeOpenHandles.Add(delta) }

func AddTileBytes(n int) {
	if n > 0 {
		tileBytesTotal.Add(float64(n))
	}
}

func SetQueueDepth(n int) { poolQueueDepth.Set(float64(n)) }

func AddBusyWorkers(delta float64) { poolBusyWorkers.Add(delta) }

// IncPoolJob counts a finished job; outcome is one of ok, panic, expired.
func IncPoolJob(outcome string) {
	poolJobsTotal.WithLabelValues(outcome).Inc()
}
