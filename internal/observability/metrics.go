// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the sniping pipeline.
type Metrics struct {
	// Discovery metrics
	EventsDiscovered prometheus.Counter
	EventsSkipped    *prometheus.CounterVec
	WSReconnects     prometheus.Counter

	// Safety metrics
	AssessmentsComputed prometheus.Counter
	AssessmentCacheHits prometheus.Counter
	Verdicts            *prometheus.CounterVec
	CheckFailures       *prometheus.CounterVec

	// Execution metrics
	AttemptsByStatus *prometheus.CounterVec
	BuyingPaused     prometheus.Gauge

	// Latency metrics
	DiscoveryToConfirmation prometheus.Histogram
	AnalysisDuration        prometheus.Histogram

	// Pipeline metrics
	QueueDepth    prometheus.Gauge
	OpenPositions prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_sniper"
	}

	return &Metrics{
		EventsDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "events_discovered_total",
			Help:      "Total number of pool-creation events discovered",
		}),
		EventsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "events_skipped_total",
			Help:      "Total number of log entries skipped, by reason",
		}, []string{"reason"}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnect attempts",
		}),

		AssessmentsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "assessments_computed_total",
			Help:      "Total number of safety assessments computed",
		}),
		AssessmentCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "assessment_cache_hits_total",
			Help:      "Total number of assessments served from cache",
		}),
		Verdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "verdicts_total",
			Help:      "Total number of verdicts, by outcome",
		}, []string{"verdict"}),
		CheckFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "check_failures_total",
			Help:      "Total number of safety check query failures, by check",
		}, []string{"check"}),

		AttemptsByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "attempts_total",
			Help:      "Total number of trade attempts, by terminal status",
		}, []string{"status"}),
		BuyingPaused: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "buying_paused",
			Help:      "1 if buying is paused due to resource exhaustion",
		}),

		DiscoveryToConfirmation: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "latency",
			Name:      "discovery_to_confirmation_seconds",
			Help:      "Wall clock from pool discovery to trade confirmation",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "latency",
			Name:      "analysis_duration_seconds",
			Help:      "Safety analysis duration",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 0.8, 1, 2},
		}),

		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Number of discovery events waiting for a worker",
		}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "open_positions",
			Help:      "Number of currently open positions",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
