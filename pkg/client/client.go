// Package client provides a blocking, context-aware page client on top of the
// asynchronous fetch simulator, with rate limit gating, circuit breaking and
// retries.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Sternrassler/pagesim/pkg/pager"
	"github.com/Sternrassler/pagesim/pkg/ratelimit"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesim_client_requests_total",
		Help: "Total page requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagesim_client_request_duration_seconds",
		Help:    "Page request duration in seconds, including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesim_client_errors_total",
		Help: "Total page attempt errors by class",
	}, []string{"class"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagesim_client_circuit_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	})
)

// Backend is the asynchronous page source. *pager.Simulator implements it.
type Backend interface {
	FetchAsync(cursor pager.Cursor) <-chan pager.Result
}

// BreakerConfig configures the circuit breaker around the backend.
type BreakerConfig struct {
	// MinRequests is the number of requests in an interval before the breaker may trip.
	MinRequests uint32

	// FailureRatio trips the breaker once reached.
	FailureRatio float64

	// Interval clears the closed-state counts periodically.
	Interval time.Duration

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// Config holds the client configuration.
type Config struct {
	// Backend serves pages (REQUIRED).
	Backend Backend

	// Tracker gates requests after repeated rate limits. Defaults to an
	// in-memory tracker.
	Tracker *ratelimit.Tracker

	// Retry per error class.
	Retry RetryPolicy

	// AttemptTimeout bounds a single attempt. Zero waits as long as ctx allows.
	AttemptTimeout time.Duration

	// Breaker settings.
	Breaker BreakerConfig

	// Logger defaults to the global logger with component=client.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(backend Backend) Config {
	return Config{
		Backend:        backend,
		Retry:          DefaultRetryPolicy(),
		AttemptTimeout: 10 * time.Second,
		Breaker: BreakerConfig{
			MinRequests:      10,
			FailureRatio:     0.6,
			Interval:         30 * time.Second,
			OpenTimeout:      2 * time.Second,
			HalfOpenRequests: 1,
		},
	}
}

// Client fetches pages one at a time, blocking until the backend answers.
type Client struct {
	backend Backend
	tracker *ratelimit.Tracker
	breaker *gobreaker.CircuitBreaker
	config  Config
	logger  zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.AttemptTimeout < 0 {
		return nil, fmt.Errorf("attempt_timeout must be >= 0 (got %s)", cfg.AttemptTimeout)
	}
	if cfg.Breaker.FailureRatio <= 0 || cfg.Breaker.FailureRatio > 1 {
		return nil, fmt.Errorf("breaker failure_ratio must be in (0, 1] (got %v)", cfg.Breaker.FailureRatio)
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryPolicy()
	}

	logger := log.With().Str("component", "client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	tracker := cfg.Tracker
	if tracker == nil {
		tracker = ratelimit.NewTracker(ratelimit.NewMemoryStore(), ratelimit.DefaultConfig(), logger)
	}

	c := &Client{
		backend: cfg.Backend,
		tracker: tracker,
		config:  cfg,
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pagesim-backend",
		MaxRequests: cfg.Breaker.HalfOpenRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.Breaker.MinRequests && failureRatio >= cfg.Breaker.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.Set(float64(to))
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			// a malformed cursor or a caller giving up says nothing about backend health
			return err == nil ||
				classify(err) == ErrorClassInvalidCursor ||
				errors.Is(err, ErrContextCancelled)
		},
	})

	return c, nil
}

// FetchPage requests the page at cursor and waits for it. Rate-limited
// attempts are retried; invalid cursors are returned immediately.
func (c *Client) FetchPage(ctx context.Context, cursor pager.Cursor) (*pager.Page, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	logger := c.logger.With().Stringer("cursor", cursor).Logger()

	// Step 1: Check rate limit
	allowed, err := c.tracker.ShouldAllowRequest(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctxErr)
		}
		logger.Error().Err(err).Msg("Rate limit check failed")
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		logger.Warn().Msg("Request blocked by rate limiter")
		requestsTotal.WithLabelValues("blocked").Inc()
		return nil, ErrBlocked
	}

	// Step 2: Fetch with retry, every attempt through the breaker
	var page *pager.Page
	err = retryWithBackoff(ctx, c.config.Retry, func() error {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.attempt(ctx, cursor)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
			}
			class := classify(err)
			if class != "" {
				errorsTotal.WithLabelValues(string(class)).Inc()
			}
			logger.Warn().
				Err(err).
				Str("error_class", string(class)).
				Msg("Page attempt failed")
			return err
		}
		page = result.(*pager.Page)
		return nil
	}, classify)

	if err != nil {
		status := string(classify(err))
		if errors.Is(err, ErrContextCancelled) {
			status = "cancelled"
		} else if status == "" {
			status = "error"
		}
		requestsTotal.WithLabelValues(status).Inc()
		return nil, err
	}

	requestsTotal.WithLabelValues("ok").Inc()
	logger.Debug().
		Int("records", len(page.Records)).
		Stringer("next", page.Next).
		Dur("duration", time.Since(startTime)).
		Msg("Page fetched")

	return page, nil
}

// attempt issues one backend request and waits for its result.
func (c *Client) attempt(ctx context.Context, cursor pager.Cursor) (*pager.Page, error) {
	var timeout <-chan time.Time
	if c.config.AttemptTimeout > 0 {
		timer := time.NewTimer(c.config.AttemptTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case result := <-c.backend.FetchAsync(cursor):
		if result.Err != nil {
			if result.Err.Class == pager.ClassRateLimit {
				if err := c.tracker.RecordRateLimited(ctx); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to record rate limit")
				}
			}
			return nil, fromFetchError(result.Err)
		}
		if err := c.tracker.RecordSuccess(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record success")
		}
		return result.Page, nil
	case <-timeout:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	}
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Tracker returns the rate limit tracker (for testing).
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.tracker
}
