package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/pagesim/pkg/dataset"
)

// ErrMaxPages is returned when a walk stops at Config.MaxPages before the list
// is exhausted.
var ErrMaxPages = errors.New("page limit reached")

// Config holds walker configuration
type Config struct {
	// MaxPages stops the walk after this many pages (0 = unlimited)
	MaxPages int
	// RetryEmptyFirstPage re-requests a first page that is empty and has no next cursor
	RetryEmptyFirstPage bool
	// MaxEmptyRetries bounds the re-requests of an empty first page
	MaxEmptyRetries int
	// ProgressEvery logs progress every N pages (0 = never)
	ProgressEvery int
}

// DefaultConfig returns a walker configuration suited to the simulator
func DefaultConfig() Config {
	return Config{
		MaxPages:            1000,
		RetryEmptyFirstPage: true,
		MaxEmptyRetries:     3,
		ProgressEvery:       5,
	}
}

// Walker drives a Listing from the first page to the last
type Walker struct {
	listing *Listing
	config  Config
}

// NewWalker creates a new walker
func NewWalker(listing *Listing, config Config) *Walker {
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}
	if config.MaxEmptyRetries < 0 {
		config.MaxEmptyRetries = 0
	}
	return &Walker{
		listing: listing,
		config:  config,
	}
}

// Collect refreshes the listing and follows next cursors until the list is
// exhausted. When a later page fails the records loaded so far are returned
// together with the error.
func (w *Walker) Collect(ctx context.Context) ([]dataset.Record, error) {
	start := time.Now()

	if _, err := w.listing.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	if w.config.RetryEmptyFirstPage {
		for retry := 1; retry <= w.config.MaxEmptyRetries && w.emptyFirstPage(); retry++ {
			log.Warn().
				Int("retry", retry).
				Int("max_retries", w.config.MaxEmptyRetries).
				Msg("First page empty, requesting it again")

			if _, err := w.listing.Refresh(ctx); err != nil {
				return nil, fmt.Errorf("failed to re-fetch first page: %w", err)
			}
		}
	}

	log.Info().
		Int("records", w.listing.Len()).
		Bool("exhausted", w.listing.Exhausted()).
		Msg("Starting list walk")

	for !w.listing.Exhausted() {
		pages := w.listing.Pages()
		if w.config.MaxPages > 0 && pages >= w.config.MaxPages {
			log.Warn().
				Int("pages", pages).
				Int("records", w.listing.Len()).
				Stringer("next", w.listing.Cursor()).
				Msg("Page limit reached - returning partial results")
			return w.listing.Records(), fmt.Errorf("%w (%d pages)", ErrMaxPages, pages)
		}

		if _, err := w.listing.Next(ctx); err != nil {
			records := w.listing.Records()
			log.Warn().
				Err(err).
				Int("pages", pages).
				Int("records", len(records)).
				Msg("Page fetch failed - returning partial results")
			return records, fmt.Errorf("walk failed (partial data: %d records): %w", len(records), err)
		}

		if every := w.config.ProgressEvery; every > 0 && w.listing.Pages()%every == 0 {
			log.Info().
				Int("pages", w.listing.Pages()).
				Int("records", w.listing.Len()).
				Stringer("next", w.listing.Cursor()).
				Msg("Walk progress")
		}
	}

	records := w.listing.Records()
	log.Info().
		Int("pages", w.listing.Pages()).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Walk complete")

	return records, nil
}

func (w *Walker) emptyFirstPage() bool {
	return w.listing.Pages() == 1 && w.listing.Len() == 0 && w.listing.Exhausted()
}
