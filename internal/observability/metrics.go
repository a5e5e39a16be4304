// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feed metrics
	FeedBarsReceived prometheus.Counter
	FeedBarsStored   prometheus.Counter
	FeedBarsSkipped  *prometheus.CounterVec
	FeedReconnects   prometheus.Counter
	LastBarTimestamp prometheus.Gauge

	// Graph metrics
	TicksProcessed      prometheus.Counter
	PointsComputed      prometheus.Counter
	ComputeRoundLatency prometheus.Histogram

	// Storage metrics
	StoreWriteErrors *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered on reg. A nil reg uses
// the default registry; tests pass a fresh one so double registration
// cannot panic.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "market_metrics_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Feed metrics
		FeedBarsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "bars_received_total",
			Help:      "Total number of bar messages received from the live feed",
		}),
		FeedBarsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "bars_stored_total",
			Help:      "Total number of live bars written to the bar store",
		}),
		FeedBarsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "bars_skipped_total",
			Help:      "Total number of live bars dropped, by reason",
		}, []string{"reason"}),
		FeedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of websocket reconnects",
		}),
		LastBarTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "last_bar_timestamp_ms",
			Help:      "Timestamp of the most recent accepted live bar",
		}),

		// Graph metrics
		TicksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "ticks_processed_total",
			Help:      "Total number of clock ticks stepped through the graph",
		}),
		PointsComputed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "points_computed_total",
			Help:      "Total number of metric points computed",
		}),
		ComputeRoundLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "compute_round_latency_seconds",
			Help:      "Duration of one full compute round across all containers",
			Buckets:   prometheus.DefBuckets,
		}),

		// Storage metrics
		StoreWriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "write_errors_total",
			Help:      "Total number of store write errors, by operation",
		}, []string{"operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
