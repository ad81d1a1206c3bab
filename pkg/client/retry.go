package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesim_client_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagesim_client_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesim_client_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// RetryPolicy maps error classes to retry configuration.
// Classes without an entry use DefaultRetryConfig.
type RetryPolicy map[ErrorClass]RetryConfig

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DefaultRetryPolicy returns per-class retry configuration tuned for the
// simulator: rate limits clear quickly, timeouts get fewer attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ErrorClassRateLimit: {
			MaxAttempts:       5,
			InitialBackoff:    300 * time.Millisecond,
			MaxBackoff:        3 * time.Second,
			BackoffMultiplier: 2.0,
		},
		ErrorClassTimeout: {
			MaxAttempts:       2,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
	}
}

// For returns the configuration for errorClass.
func (p RetryPolicy) For(errorClass ErrorClass) RetryConfig {
	if cfg, ok := p[errorClass]; ok {
		return cfg
	}
	return DefaultRetryConfig()
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// Each error class counts its own attempts against its own MaxAttempts, so the
// total number of calls is bounded by the sum of the limits of the classes seen.
// The backoff restarts from InitialBackoff whenever the class changes.
// It respects context cancellation and adds jitter to prevent thundering herd.
func retryWithBackoff(ctx context.Context, policy RetryPolicy, fn func() error, classifyErr func(error) ErrorClass) error {
	var lastErr error
	var errorClass ErrorClass
	var backoff time.Duration
	classAttempts := make(map[ErrorClass]int)

	attempt := 0
	for {
		attempt++
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		class := classifyErr(err)
		if !shouldRetry(class) {
			return lastErr
		}

		config := policy.For(class)
		if class != errorClass {
			backoff = config.InitialBackoff
		}
		errorClass = class

		classAttempts[class]++
		if classAttempts[class] >= config.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(errorClass)).Inc()

		// ±20% jitter
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		log.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Int("class_attempt", classAttempts[class]).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	log.Warn().
		Str("error_class", string(errorClass)).
		Int("attempts", attempt).
		Int("max_attempts", policy.For(errorClass).MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, lastErr)
}
