package pager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for fetch metrics.
const (
	outcomeSuccess       = "success"
	outcomeRateLimited   = "rate_limited"
	outcomeInvalidCursor = "invalid_cursor"
)

// Anomaly labels.
const (
	anomalyDuplicateBoundary = "duplicate_boundary"
	anomalyEmptyFirstPage    = "empty_first_page"
)

var (
	// FetchesTotal counts completed fetch computations by outcome.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagesim_fetches_total",
			Help: "Total simulated fetches by outcome",
		},
		[]string{"outcome"}, // "success", "rate_limited", "invalid_cursor"
	)

	// FetchLatency observes the simulated network latency by outcome.
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagesim_fetch_latency_seconds",
			Help:    "Simulated fetch latency in seconds by outcome",
			Buckets: []float64{0.05, 0.1, 0.3, 0.5, 1, 1.5, 2, 5},
		},
		[]string{"outcome"},
	)

	// AnomaliesTotal counts injected backend bugs by kind.
	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagesim_anomalies_total",
			Help: "Total injected backend anomalies by kind",
		},
		[]string{"kind"}, // "duplicate_boundary", "empty_first_page"
	)

	// InFlight tracks results waiting out their latency.
	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagesim_fetches_in_flight",
			Help: "Number of computed fetch results not yet delivered",
		},
	)
)
