package pager

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/pagesim/pkg/dataset"
	"github.com/Sternrassler/pagesim/pkg/random"
)

// Scheduler runs f once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Option customizes a Simulator.
type Option func(*Simulator)

// WithSource replaces the random source built from Config.Seed.
// The source is only used under the simulator's lock, so it does not need to
// be safe for concurrent use.
func WithSource(src random.Source) Option {
	return func(s *Simulator) {
		s.src = src
	}
}

// WithDataset injects a dataset generator instead of building one from
// Config.DatasetSize.
func WithDataset(g *dataset.Generator) Option {
	return func(s *Simulator) {
		s.dataset = g
	}
}

// WithScheduler replaces the timer used to delay delivery.
func WithScheduler(sched Scheduler) Option {
	return func(s *Simulator) {
		s.sched = sched
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// Simulator emulates a flaky, slow, cursor-paginated list backend.
type Simulator struct {
	// mu serializes dataset initialization and every per-call random decision.
	mu sync.Mutex

	config  Config
	src     random.Source
	dataset *dataset.Generator
	sched   Scheduler
	logger  zerolog.Logger
}

// New creates a simulator.
func New(cfg Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Simulator{
		config: cfg,
		sched:  timerScheduler{},
		logger: log.With().Str("component", "pager").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.src == nil {
		s.src = random.New(cfg.Seed)
	}
	if s.dataset == nil {
		g, err := dataset.NewGenerator(cfg.DatasetSize, s.src, s.logger)
		if err != nil {
			return nil, fmt.Errorf("create dataset: %w", err)
		}
		s.dataset = g
	}

	return s, nil
}

// Dataset returns the generator backing the simulator.
func (s *Simulator) Dataset() *dataset.Generator {
	return s.dataset
}

// Fetch requests the page at cursor and returns immediately. onComplete is
// called exactly once, after the simulated latency, on a goroutine owned by
// the scheduler. Results of concurrent fetches may arrive in any order.
func (s *Simulator) Fetch(cursor Cursor, onComplete func(Result)) {
	requestID := uuid.NewString()

	go func() {
		s.mu.Lock()
		s.dataset.EnsureInitialized()
		result, wait := s.process(requestID, cursor)
		s.mu.Unlock()

		InFlight.Inc()
		s.sched.AfterFunc(wait, func() {
			InFlight.Dec()
			if onComplete != nil {
				onComplete(result)
			}
		})
	}()
}

// FetchAsync is Fetch with the result delivered on a buffered channel.
// The channel receives exactly one value and is never closed.
func (s *Simulator) FetchAsync(cursor Cursor) <-chan Result {
	ch := make(chan Result, 1)
	s.Fetch(cursor, func(r Result) {
		ch <- r
	})
	return ch
}

// process computes the response for one request. Callers must hold mu.
func (s *Simulator) process(requestID string, cursor Cursor) (Result, time.Duration) {
	logger := s.logger.With().
		Str("request_id", requestID).
		Stringer("cursor", cursor).
		Logger()

	if random.Roll(s.src, s.config.ErrorProbability) {
		wait := random.Duration(s.src, s.config.LowLatency)
		s.observe(outcomeRateLimited, wait)

		logger.Warn().
			Dur("latency", wait).
			Str("error_class", string(ClassRateLimit)).
			Msg("Simulated rate limit failure")

		return Result{Err: &FetchError{
			Class:       ClassRateLimit,
			Description: DescriptionRateLimited,
		}}, wait
	}

	wait := random.Duration(s.src, s.config.HighLatency)
	size := random.Int(s.src, s.config.PageSize)

	offset, err := cursor.Offset()
	if err != nil {
		s.observe(outcomeInvalidCursor, wait)

		logger.Warn().
			Err(err).
			Dur("latency", wait).
			Str("error_class", string(ClassInvalidCursor)).
			Msg("Rejected cursor")

		return Result{Err: &FetchError{
			Class:       ClassInvalidCursor,
			Description: DescriptionInvalidCursor,
		}}, wait
	}

	page, begin, end := s.slice(offset, size)

	switch {
	case begin > 0 && random.Roll(s.src, s.config.DuplicateBoundaryProbability):
		page.Records = append([]dataset.Record{s.dataset.At(begin - 1)}, page.Records...)
		AnomaliesTotal.WithLabelValues(anomalyDuplicateBoundary).Inc()
		logger.Debug().
			Int("duplicated_id", page.Records[0].ID).
			Msg("Injected duplicate boundary record")
	case begin == 0 && random.Roll(s.src, s.config.EmptyFirstPageProbability):
		page.Records = []dataset.Record{}
		page.Next = NoCursor
		AnomaliesTotal.WithLabelValues(anomalyEmptyFirstPage).Inc()
		logger.Debug().Msg("Injected empty first page")
	}

	s.observe(outcomeSuccess, wait)

	logger.Debug().
		Int("begin", begin).
		Int("end", end).
		Int("page_size", size).
		Int("records", len(page.Records)).
		Stringer("next", page.Next).
		Dur("latency", wait).
		Msg("Computed page")

	return Result{Page: page}, wait
}

// slice cuts the page for offset and size out of the dataset. Offsets past the
// end are clamped, which yields an empty, exhausted page.
func (s *Simulator) slice(offset, size int) (*Page, int, int) {
	total := s.dataset.Len()
	if offset > total {
		offset = total
	}

	end := min(total, offset+size)
	begin := min(offset, end)

	next := NoCursor
	if end < total {
		next = OffsetCursor(end)
	}

	return &Page{
		Records: s.dataset.Slice(begin, end),
		Next:    next,
	}, begin, end
}

func (s *Simulator) observe(outcome string, wait time.Duration) {
	FetchesTotal.WithLabelValues(outcome).Inc()
	FetchLatency.WithLabelValues(outcome).Observe(wait.Seconds())
}
