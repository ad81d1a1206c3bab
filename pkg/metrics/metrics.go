// Package metrics exposes the Prometheus registry used by pagesim.
// All metrics are defined in their respective packages (pager, dataset,
// client, ratelimit) to maintain modularity and avoid circular dependencies.
//
// This package provides the HTTP exposition and documents every metric.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by pagesim.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back what Registry collects.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}
}

// Metrics Documentation
//
// Simulator Metrics (pkg/pager):
//   - pagesim_fetches_total{outcome} (Counter): Fetches by outcome (success, rate_limited, invalid_cursor)
//   - pagesim_fetch_latency_seconds{outcome} (Histogram): Simulated delivery delay by outcome
//   - pagesim_anomalies_total{kind} (Counter): Injected anomalies (duplicate_boundary, empty_first_page)
//   - pagesim_fetches_in_flight (Gauge): Computed results waiting for delivery
//
// Dataset Metrics (pkg/dataset):
//   - pagesim_dataset_generations_total (Counter): Dataset generations (at most one per generator)
//   - pagesim_dataset_records (Gauge): Records in the generated dataset
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pagesim_rate_limit_hits (Gauge): Rate-limited responses in the current window
//   - pagesim_rate_limit_blocks_total (Counter): Requests blocked due to critical state
//   - pagesim_rate_limit_throttles_total (Counter): Requests throttled due to warning state
//   - pagesim_rate_limit_resets_total (Counter): Windows that expired with hits recorded
//
// Request Metrics (pkg/client):
//   - pagesim_client_requests_total{status} (Counter): Page requests by final status
//   - pagesim_client_request_duration_seconds (Histogram): Page request duration including retries
//   - pagesim_client_errors_total{class} (Counter): Attempt errors by class
//   - pagesim_client_circuit_state (Gauge): Circuit breaker state (0 closed, 1 half-open, 2 open)
//
// Retry Metrics (pkg/client):
//   - pagesim_client_retries_total{error_class} (Counter): Retry attempts by error class
//   - pagesim_client_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - pagesim_client_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Example Prometheus Queries:
//
//   # Simulated failure rate
//   sum(rate(pagesim_fetches_total{outcome!="success"}[5m])) /
//   sum(rate(pagesim_fetches_total[5m]))
//
//   # Duplicate boundary records per page
//   rate(pagesim_anomalies_total{kind="duplicate_boundary"}[5m]) /
//   rate(pagesim_fetches_total{outcome="success"}[5m])
//
//   # P95 end-to-end page latency
//   histogram_quantile(0.95, rate(pagesim_client_request_duration_seconds_bucket[5m]))
