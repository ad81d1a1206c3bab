package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitHits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagesim_rate_limit_hits",
		Help: "Rate-limited responses seen in the current window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagesim_rate_limit_blocks_total",
		Help: "Total number of requests blocked due to critical rate limit state",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagesim_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to warning rate limit state",
	})

	rateLimitResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagesim_rate_limit_resets_total",
		Help: "Total number of rate limit windows that expired with hits recorded",
	})
)

// Config holds tracker configuration.
type Config struct {
	// Window is how long rate-limited responses are counted before resetting.
	Window time.Duration

	// ThrottleDelay is how long a throttled request waits before proceeding.
	ThrottleDelay time.Duration
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		Window:        10 * time.Second,
		ThrottleDelay: 500 * time.Millisecond,
	}
}

// Tracker counts rate-limited responses and gates requests.
type Tracker struct {
	// mu serializes read-modify-write cycles from this process.
	mu     sync.Mutex
	store  Store
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new rate limit tracker.
func NewTracker(store Store, cfg Config, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.ThrottleDelay < 0 {
		cfg.ThrottleDelay = 0
	}
	return &Tracker{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// GetState returns the state of the current window.
// Returns a fresh healthy state if nothing is stored or the window expired.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}

	now := t.now()
	if state == nil {
		t.logger.Debug().Msg("No rate limit state stored, returning default healthy state")
		return t.freshState(now), nil
	}

	if state.WindowExpired(now) {
		if state.Hits > 0 {
			rateLimitResetsTotal.Inc()
			t.logger.Debug().
				Int("hits", state.Hits).
				Msg("Rate limit window expired")
		}
		return t.freshState(now), nil
	}

	state.UpdateHealth()
	return state, nil
}

// RecordRateLimited counts one rate-limited response.
func (t *Tracker) RecordRateLimited(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}

	state.Hits++
	state.LastUpdate = t.now()
	state.UpdateHealth()

	if err := t.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save rate limit state: %w", err)
	}

	rateLimitHits.Set(float64(state.Hits))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("hits", state.Hits).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("hits", state.Hits).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit WARNING - requests will be throttled")
	default:
		t.logger.Info().
			Int("hits", state.Hits).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Rate limit state updated")
	}

	return nil
}

// RecordSuccess decays the hit count after a successful response.
func (t *Tracker) RecordSuccess(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}
	if state.Hits == 0 {
		return nil
	}

	state.Hits--
	state.LastUpdate = t.now()
	state.UpdateHealth()

	if err := t.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save rate limit state: %w", err)
	}
	rateLimitHits.Set(float64(state.Hits))
	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on current rate limit state.
// Returns false if the request should be blocked due to critical state.
// Returns true but waits ThrottleDelay first in warning state.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("hits", state.Hits).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Rate limit critical - blocking request")

		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("hits", state.Hits).
			Dur("delay", t.config.ThrottleDelay).
			Msg("Rate limit warning - throttling request")

		rateLimitThrottlesTotal.Inc()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(t.config.ThrottleDelay):
		}
	}

	return true, nil
}

func (t *Tracker) freshState(now time.Time) *RateLimitState {
	return &RateLimitState{
		Hits:       0,
		ResetAt:    now.Add(t.config.Window),
		LastUpdate: now,
		IsHealthy:  true,
	}
}
