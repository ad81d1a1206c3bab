package pager

import (
	"fmt"
	"time"

	"github.com/Sternrassler/pagesim/pkg/random"
)

// Config holds the simulator tunables.
type Config struct {
	// DatasetSize is the range the dataset length is drawn from (lower bound > 0).
	DatasetSize random.IntRange

	// PageSize is the range each page size is drawn from (lower bound > 0).
	PageSize random.IntRange

	// LowLatency delays rate-limit failures (lower bound >= 0).
	LowLatency random.DurationRange

	// HighLatency delays every other response (lower bound >= 0).
	HighLatency random.DurationRange

	// ErrorProbability is the chance of a rate-limit failure.
	ErrorProbability float64

	// DuplicateBoundaryProbability is the chance that a non-initial page
	// repeats the last record of the previous page.
	DuplicateBoundaryProbability float64

	// EmptyFirstPageProbability is the chance that an initial page comes back
	// empty and claims the list is exhausted.
	EmptyFirstPageProbability float64

	// Seed for the default random source. Zero seeds from crypto/rand.
	Seed uint64
}

// DefaultConfig returns the configuration of the reference backend.
func DefaultConfig() Config {
	return Config{
		DatasetSize:                  random.IntRange{Min: 100, Max: 200},
		PageSize:                     random.IntRange{Min: 5, Max: 20},
		LowLatency:                   random.DurationRange{Min: 0, Max: 300 * time.Millisecond},
		HighLatency:                  random.DurationRange{Min: 1 * time.Second, Max: 2 * time.Second},
		ErrorProbability:             0.1,
		DuplicateBoundaryProbability: 0.05,
		EmptyFirstPageProbability:    0.1,
	}
}

// Validate checks every bound.
func (c Config) Validate() error {
	if err := c.DatasetSize.Validate(1); err != nil {
		return fmt.Errorf("dataset_size: %w", err)
	}
	if err := c.PageSize.Validate(1); err != nil {
		return fmt.Errorf("page_size: %w", err)
	}
	if err := c.LowLatency.Validate(); err != nil {
		return fmt.Errorf("low_latency: %w", err)
	}
	if err := c.HighLatency.Validate(); err != nil {
		return fmt.Errorf("high_latency: %w", err)
	}

	probabilities := []struct {
		name  string
		value float64
	}{
		{"error_probability", c.ErrorProbability},
		{"duplicate_boundary_probability", c.DuplicateBoundaryProbability},
		{"empty_first_page_probability", c.EmptyFirstPageProbability},
	}
	for _, p := range probabilities {
		if p.value <= 0 || p.value > 1 {
			return fmt.Errorf("%s must be in (0, 1] (got %v)", p.name, p.value)
		}
	}

	return nil
}
