// Package ratelimit tracks how often the list backend answers "do not refresh
// rapidly" and gates further requests so callers back off before hammering it.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyHits           = "pagesim:rate_limit:hits"
	RedisKeyResetTimestamp = "pagesim:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "pagesim:rate_limit:last_update"
)

// Thresholds for rate limit decisions, counted in rate-limited responses per window.
const (
	// HitThresholdCritical blocks all requests until the window resets.
	HitThresholdCritical = 6

	// HitThresholdWarning throttles requests.
	HitThresholdWarning = 3
)

// RateLimitState is the rate limit state for the current window.
// It can be shared across client instances through a Store.
type RateLimitState struct {
	// Hits is the number of rate-limited responses seen in the current window.
	Hits int `json:"hits"`

	// ResetAt is when the current window ends and Hits drops back to zero.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Hits is below HitThresholdWarning.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// WindowExpired reports whether the window has ended.
func (s *RateLimitState) WindowExpired(now time.Time) bool {
	return !now.Before(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Hits >= HitThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Hits >= HitThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Hits.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Hits < HitThresholdWarning
}
