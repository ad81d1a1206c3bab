package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagesim/pkg/dataset"
	"github.com/Sternrassler/pagesim/pkg/pager"
)

var (
	// ErrExhausted is returned by Next once the last page has been loaded.
	ErrExhausted = errors.New("listing exhausted")

	// ErrBusy is returned when a load is already in progress.
	ErrBusy = errors.New("listing load in progress")
)

// PageFetcher fetches the page at a cursor and waits for it.
// *client.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor pager.Cursor) (*pager.Page, error)
}

// Listing accumulates the records of a paginated list, page by page.
// It is safe for concurrent use; at most one load runs at a time.
type Listing struct {
	mu      sync.Mutex
	fetcher PageFetcher
	logger  zerolog.Logger

	records   []dataset.Record
	seen      map[int]struct{}
	next      pager.Cursor
	pages     int
	exhausted bool
	loading   bool
}

// NewListing creates an empty listing.
func NewListing(fetcher PageFetcher, logger zerolog.Logger) *Listing {
	return &Listing{
		fetcher: fetcher,
		logger:  logger,
		seen:    make(map[int]struct{}),
		next:    pager.NoCursor,
	}
}

// Next loads the page at the stored cursor and appends its records that are
// not already present. It returns the number of records added.
// On failure the listing is left unchanged.
func (l *Listing) Next(ctx context.Context) (int, error) {
	l.mu.Lock()
	if l.loading {
		l.mu.Unlock()
		return 0, ErrBusy
	}
	if l.exhausted {
		l.mu.Unlock()
		return 0, ErrExhausted
	}
	l.loading = true
	cursor := l.next
	l.mu.Unlock()

	page, err := l.fetcher.FetchPage(ctx, cursor)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false

	if err != nil {
		l.logger.Warn().
			Err(err).
			Stringer("cursor", cursor).
			Int("records", len(l.records)).
			Msg("Page load failed, keeping listing")
		return 0, fmt.Errorf("load page at cursor %s: %w", cursor, err)
	}

	added := l.merge(page.Records)
	l.next = page.Next
	l.exhausted = page.Exhausted()
	l.pages++

	if dropped := len(page.Records) - added; dropped > 0 {
		l.logger.Debug().
			Stringer("cursor", cursor).
			Int("duplicates", dropped).
			Msg("Dropped duplicate records")
	}

	return added, nil
}

// Refresh discards everything and reloads the first page.
func (l *Listing) Refresh(ctx context.Context) (int, error) {
	l.mu.Lock()
	if l.loading {
		l.mu.Unlock()
		return 0, ErrBusy
	}
	l.reset()
	l.mu.Unlock()

	l.logger.Debug().Msg("Listing refreshed")
	return l.Next(ctx)
}

// merge appends records whose id has not been seen. Callers must hold mu.
func (l *Listing) merge(records []dataset.Record) int {
	added := 0
	for _, r := range records {
		if _, dup := l.seen[r.ID]; dup {
			continue
		}
		l.seen[r.ID] = struct{}{}
		l.records = append(l.records, r)
		added++
	}
	return added
}

func (l *Listing) reset() {
	l.records = nil
	l.seen = make(map[int]struct{})
	l.next = pager.NoCursor
	l.pages = 0
	l.exhausted = false
}

// Records returns a copy of the accumulated records in load order.
func (l *Listing) Records() []dataset.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]dataset.Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of accumulated records.
func (l *Listing) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Pages returns the number of pages loaded since the last refresh.
func (l *Listing) Pages() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pages
}

// Cursor returns the cursor the next load will use.
func (l *Listing) Cursor() pager.Cursor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}

// Exhausted reports whether the last page has been loaded.
func (l *Listing) Exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exhausted
}
