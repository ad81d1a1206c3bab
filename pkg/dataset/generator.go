// Package dataset builds the in-memory collection of people served by the
// fetch simulator.
package dataset

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagesim/pkg/random"
)

// Prometheus metrics for dataset generation.
var (
	// GenerationsTotal counts dataset generations. A generator contributes at most one.
	GenerationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagesim_dataset_generations_total",
		Help: "Total number of datasets generated",
	})

	datasetRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagesim_dataset_records",
		Help: "Number of records in the most recently generated dataset",
	})
)

// Record is a single person in the dataset.
type Record struct {
	ID       int    `json:"id"`
	FullName string `json:"fullName"`
}

// String renders the record the way list views display it.
func (r Record) String() string {
	return fmt.Sprintf("%s(%d)", r.FullName, r.ID)
}

// Generator lazily builds a shuffled dataset exactly once.
//
// The zero value is not usable; create one with NewGenerator.
type Generator struct {
	mu      sync.RWMutex
	records []Record

	size   random.IntRange
	src    random.Source
	logger zerolog.Logger
}

// NewGenerator creates a generator that will draw the dataset size from size.
// The lower bound of size must be greater than zero.
func NewGenerator(size random.IntRange, src random.Source, logger zerolog.Logger) (*Generator, error) {
	if err := size.Validate(1); err != nil {
		return nil, fmt.Errorf("dataset size: %w", err)
	}
	if src == nil {
		return nil, fmt.Errorf("random source is required")
	}

	return &Generator{
		size:   size,
		src:    src,
		logger: logger,
	}, nil
}

// EnsureInitialized generates the dataset if it does not exist yet.
// Once the dataset is non-empty, further calls are no-ops.
func (g *Generator) EnsureInitialized() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.records) > 0 {
		return
	}

	start := time.Now()
	count := random.Int(g.src, g.size)

	records := make([]Record, count)
	for i := range records {
		records[i] = Record{
			ID:       i + 1,
			FullName: randomFullName(g.src),
		}
	}
	g.src.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})

	g.records = records

	GenerationsTotal.Inc()
	datasetRecords.Set(float64(count))

	g.logger.Info().
		Int("records", count).
		Dur("duration", time.Since(start)).
		Msg("Dataset generated")
}

// Initialized reports whether the dataset has been generated.
func (g *Generator) Initialized() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records) > 0
}

// Len returns the number of records, or 0 before initialization.
func (g *Generator) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}

// At returns the record at index i of the shuffled dataset.
func (g *Generator) At(i int) Record {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.records[i]
}

// Slice returns a copy of the records in [begin, end).
func (g *Generator) Slice(begin, end int) []Record {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Record, end-begin)
	copy(out, g.records[begin:end])
	return out
}

// Records returns a copy of the whole dataset in its shuffled order.
func (g *Generator) Records() []Record {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Record, len(g.records))
	copy(out, g.records)
	return out
}
