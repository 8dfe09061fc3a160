// Package metrics exposes the Prometheus counters/gauges the ingest
// core and worker update, scraped via the gin /metrics route.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpphooks_ingest_requests_total",
			Help: "Total webhook ingest requests by outcome.",
		},
		[]string{"outcome"}, // accepted, duplicate, auth_rejected, ingest_fault
	)

	WorkerBatchSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wpphooks_worker_batch_size",
			Help: "Number of raw events claimed in the most recent worker tick.",
		},
	)

	WorkerRowsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpphooks_worker_rows_processed_total",
			Help: "Total raw event rows processed by the worker by outcome.",
		},
		[]string{"outcome"}, // processed, soft_terminal, retried, finalized_failed
	)

	WorkerTickFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wpphooks_worker_tick_failures_total",
			Help: "Total worker ticks that failed at transaction scope.",
		},
	)
)

// Register mounts the /metrics scrape endpoint.
func Register(router gin.IRouter) {
	handler := promhttp.Handler()
	router.GET("/metrics", gin.WrapH(handler))
}
