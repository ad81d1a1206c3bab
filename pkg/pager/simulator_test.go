package pager

import (
	"os"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagesim/internal/testutil"
	"github.com/Sternrassler/pagesim/pkg/dataset"
	"github.com/Sternrassler/pagesim/pkg/random"
)

// fixedConfig builds a 150 record dataset served in pages of exactly 10.
func fixedConfig() Config {
	cfg := DefaultConfig()
	cfg.DatasetSize = random.IntRange{Min: 150, Max: 150}
	cfg.PageSize = random.IntRange{Min: 10, Max: 10}
	return cfg
}

func newTestSimulator(t *testing.T, cfg Config, src random.Source) (*Simulator, *testutil.RecordingClock) {
	t.Helper()

	clock := &testutil.RecordingClock{}
	sim, err := New(cfg,
		WithSource(src),
		WithScheduler(clock),
		WithLogger(zerolog.New(os.Stderr).Level(zerolog.Disabled)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return sim, clock
}

func await(t *testing.T, sim *Simulator, cursor Cursor) Result {
	t.Helper()

	select {
	case r := <-sim.FetchAsync(cursor):
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("fetch(%s) was never delivered", cursor)
		return Result{}
	}
}

func ids(records []dataset.Record) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func assertIDs(t *testing.T, records []dataset.Record, first, last int) {
	t.Helper()

	want := last - first + 1
	if len(records) != want {
		t.Fatalf("got %d records %v, want ids %d..%d", len(records), ids(records), first, last)
	}
	for i, r := range records {
		if r.ID != first+i {
			t.Fatalf("record %d has id %d, want %d (ids %v)", i, r.ID, first+i, ids(records))
		}
	}
}

func assertHighLatency(t *testing.T, clock *testutil.RecordingClock, cfg Config) {
	t.Helper()

	d := clock.LastDelay()
	if d < cfg.HighLatency.Min || d > cfg.HighLatency.Max {
		t.Errorf("delay = %v, want within success range [%v, %v]", d, cfg.HighLatency.Min, cfg.HighLatency.Max)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "zero dataset size", mutate: func(c *Config) { c.DatasetSize.Min = 0 }, wantErr: true},
		{name: "zero page size", mutate: func(c *Config) { c.PageSize.Min = 0 }, wantErr: true},
		{name: "negative low latency", mutate: func(c *Config) { c.LowLatency.Min = -time.Millisecond }, wantErr: true},
		{name: "inverted high latency", mutate: func(c *Config) { c.HighLatency.Max = 0 }, wantErr: true},
		{name: "zero error probability", mutate: func(c *Config) { c.ErrorProbability = 0 }, wantErr: true},
		{name: "zero duplicate probability", mutate: func(c *Config) { c.DuplicateBoundaryProbability = 0 }, wantErr: true},
		{name: "empty page probability above one", mutate: func(c *Config) { c.EmptyFirstPageProbability = 1.5 }, wantErr: true},
		{name: "certain failure", mutate: func(c *Config) { c.ErrorProbability = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PageSize = random.IntRange{Min: 0, Max: 0}

	if _, err := New(cfg); err == nil {
		t.Fatal("New() should reject an invalid config")
	}
}

func TestFetch_FirstPage(t *testing.T) {
	cfg := fixedConfig()
	sim, clock := newTestSimulator(t, cfg, testutil.NewQuietSource())

	r := await(t, sim, NoCursor)
	if !r.OK() {
		t.Fatalf("fetch failed: %v", r.Err)
	}

	assertIDs(t, r.Page.Records, 1, 10)
	if got := r.Page.Next; got != CursorFrom("10") {
		t.Errorf("Next = %s, want 10", got)
	}
	assertHighLatency(t, clock, cfg)
}

func TestFetch_LastPage(t *testing.T) {
	cfg := fixedConfig()
	sim, clock := newTestSimulator(t, cfg, testutil.NewQuietSource())

	r := await(t, sim, CursorFrom("140"))
	if !r.OK() {
		t.Fatalf("fetch failed: %v", r.Err)
	}

	assertIDs(t, r.Page.Records, 141, 150)
	if r.Page.Next.Present() {
		t.Errorf("Next = %s, want none", r.Page.Next)
	}
	if !r.Page.Exhausted() {
		t.Error("Exhausted() = false on the last page")
	}
	assertHighLatency(t, clock, cfg)
}

func TestFetch_PartialLastPage(t *testing.T) {
	sim, _ := newTestSimulator(t, fixedConfig(), testutil.NewQuietSource())

	r := await(t, sim, CursorFrom("145"))
	if !r.OK() {
		t.Fatalf("fetch failed: %v", r.Err)
	}

	assertIDs(t, r.Page.Records, 146, 150)
	if r.Page.Next.Present() {
		t.Errorf("Next = %s, want none", r.Page.Next)
	}
}

func TestFetch_OffsetBeyondDataset(t *testing.T) {
	sim, _ := newTestSimulator(t, fixedConfig(), testutil.NewQuietSource())

	r := await(t, sim, CursorFrom("500"))
	if !r.OK() {
		t.Fatalf("fetch failed: %v", r.Err)
	}
	if len(r.Page.Records) != 0 {
		t.Errorf("got %d records past the end, want 0", len(r.Page.Records))
	}
	if r.Page.Next.Present() {
		t.Errorf("Next = %s, want none", r.Page.Next)
	}
}

func TestFetch_InvalidCursor(t *testing.T) {
	tests := []struct {
		name   string
		cursor Cursor
	}{
		{"letters", CursorFrom("abc")},
		{"negative", CursorFrom("-5")},
		{"empty token", CursorFrom("")},
		{"fraction", CursorFrom("1.5")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fixedConfig()
			sim, clock := newTestSimulator(t, cfg, testutil.NewQuietSource())

			r := await(t, sim, tt.cursor)
			if r.OK() || r.Page != nil {
				t.Fatalf("fetch(%q) succeeded, want invalid cursor failure", tt.cursor.Token())
			}
			if r.Err.Class != ClassInvalidCursor {
				t.Errorf("Class = %s, want %s", r.Err.Class, ClassInvalidCursor)
			}
			if r.Err.Description != DescriptionInvalidCursor {
				t.Errorf("Description = %q, want %q", r.Err.Description, DescriptionInvalidCursor)
			}
			if r.Err.Retryable() {
				t.Error("invalid cursor failures must not be retryable")
			}
			assertHighLatency(t, clock, cfg)
		})
	}
}

func TestFetch_RateLimited(t *testing.T) {
	cfg := fixedConfig()
	src := testutil.NewQuietSource()
	// error roll, low latency draw
	src.QueueFloats(0.0, 0.5)
	sim, clock := newTestSimulator(t, cfg, src)

	r := await(t, sim, CursorFrom("20"))
	if r.OK() || r.Page != nil {
		t.Fatal("fetch succeeded, want rate limit failure")
	}
	if r.Err.Class != ClassRateLimit {
		t.Errorf("Class = %s, want %s", r.Err.Class, ClassRateLimit)
	}
	if r.Err.Description != DescriptionRateLimited {
		t.Errorf("Description = %q, want %q", r.Err.Description, DescriptionRateLimited)
	}
	if !r.Err.Retryable() {
		t.Error("rate limit failures should be retryable")
	}
	if got, want := clock.LastDelay(), 150*time.Millisecond; got != want {
		t.Errorf("delay = %v, want %v", got, want)
	}
	if src.FloatCalls() != 2 {
		t.Errorf("took %d float draws, want 2 (no page computation on failure)", src.FloatCalls())
	}
}

func TestFetch_DuplicateBoundaryBug(t *testing.T) {
	src := testutil.NewQuietSource()
	// no error, latency, duplicate roll
	src.QueueFloats(0.9, 0.5, 0.0)
	sim, _ := newTestSimulator(t, fixedConfig(), src)

	before := promtest.ToFloat64(AnomaliesTotal.WithLabelValues(anomalyDuplicateBoundary))

	r := await(t, sim, CursorFrom("10"))
	if !r.OK() {
		t.Fatalf("fetch failed: %v", r.Err)
	}

	if len(r.Page.Records) != 11 {
		t.Fatalf("got %d records, want 11 (10 plus duplicate)", len(r.Page.Records))
	}
	if got, want := r.Page.Records[0], sim.Dataset().At(9); got != want {
		t.Errorf("leading record = %v, want record at begin-1 %v", got, want)
	}
	assertIDs(t, r.Page.Records[1:], 11, 20)
	if got := r.Page.Next; got != CursorFrom("20") {
		t.Errorf("Next = %s, want 20 (unchanged by the duplicate)", got)
	}

	after := promtest.ToFloat64(AnomaliesTotal.WithLabelValues(anomalyDuplicateBoundary))
	if after-before != 1 {
		t.Errorf("duplicate anomaly counter moved by %v, want 1", after-before)
	}
}

func TestFetch_DuplicateBoundaryNeverOnFirstPage(t *testing.T) {
	src := testutil.NewQuietSource()
	// no error, latency, then a roll that would trigger either bug; only the
	// empty first page check applies at offset 0, so queue a miss for it.
	src.QueueFloats(0.9, 0.5, 0.5)
	cfg := fixedConfig()
	cfg.DuplicateBoundaryProbability = 1
	sim, _ := newTestSimulator(t, cfg, src)

	r := await(t, sim, NoCursor)
	if !r.OK() {
		t.Fatalf("fetch failed: %v", r.Err)
	}
	assertIDs(t, r.Page.Records, 1, 10)
}

func TestFetch_EmptyFirstPageBug(t *testing.T) {
	for _, size := range []int{1, 150, 10} {
		src := testutil.NewQuietSource()
		// no error, latency, empty page roll
		src.QueueFloats(0.9, 0.5, 0.0)
		cfg := fixedConfig()
		cfg.DatasetSize = random.IntRange{Min: size, Max: size}
		sim, _ := newTestSimulator(t, cfg, src)

		r := await(t, sim, NoCursor)
		if !r.OK() {
			t.Fatalf("dataset %d: fetch failed: %v", size, r.Err)
		}
		if len(r.Page.Records) != 0 {
			t.Errorf("dataset %d: got %d records, want empty page", size, len(r.Page.Records))
		}
		if r.Page.Next.Present() {
			t.Errorf("dataset %d: Next = %s, want none", size, r.Page.Next)
		}
	}
}

func TestFetch_EmptyFirstPageBugOnExplicitZeroCursor(t *testing.T) {
	src := testutil.NewQuietSource()
	src.QueueFloats(0.9, 0.5, 0.0)
	sim, _ := newTestSimulator(t, fixedConfig(), src)

	r := await(t, sim, CursorFrom("0"))
	if !r.OK() {
		t.Fatalf("fetch failed: %v", r.Err)
	}
	if len(r.Page.Records) != 0 || r.Page.Next.Present() {
		t.Errorf("got %d records and next %s, want empty exhausted page", len(r.Page.Records), r.Page.Next)
	}
}

func TestFetch_CursorRoundTrip(t *testing.T) {
	sim, _ := newTestSimulator(t, fixedConfig(), testutil.NewQuietSource())

	cursor := NoCursor
	seen := 0
	for pages := 0; pages < 20; pages++ {
		r := await(t, sim, cursor)
		if !r.OK() {
			t.Fatalf("page %d failed: %v", pages, r.Err)
		}

		assertIDs(t, r.Page.Records, seen+1, seen+len(r.Page.Records))
		seen += len(r.Page.Records)

		if r.Page.Exhausted() {
			break
		}
		offset, err := r.Page.Next.Offset()
		if err != nil {
			t.Fatalf("Next %s does not decode: %v", r.Page.Next, err)
		}
		if offset != seen {
			t.Fatalf("next offset = %d, want previous end %d", offset, seen)
		}
		cursor = r.Page.Next
	}

	if seen != 150 {
		t.Errorf("walked %d records, want 150", seen)
	}
}

func TestFetch_ConcurrentFirstCallsInitializeOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 17
	sim, _ := newTestSimulator(t, cfg, random.New(17))
	before := promtest.ToFloat64(dataset.GenerationsTotal)

	const calls = 64
	results := make(chan Result, calls)
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sim.Fetch(NoCursor, func(r Result) { results <- r })
		}()
	}
	wg.Wait()

	length := -1
	for i := 0; i < calls; i++ {
		select {
		case r := <-results:
			if (r.Page == nil) == (r.Err == nil) {
				t.Fatalf("result must carry exactly one payload: %+v", r)
			}
			n := sim.Dataset().Len()
			if length == -1 {
				length = n
			}
			if n != length {
				t.Fatalf("dataset length changed from %d to %d", length, n)
			}
			if r.OK() && len(r.Page.Records) > cfg.PageSize.Max {
				t.Errorf("first page has %d records, max page size is %d", len(r.Page.Records), cfg.PageSize.Max)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d results delivered", i, calls)
		}
	}

	if length < cfg.DatasetSize.Min || length > cfg.DatasetSize.Max {
		t.Errorf("dataset length %d outside [%d, %d]", length, cfg.DatasetSize.Min, cfg.DatasetSize.Max)
	}

	if got := promtest.ToFloat64(dataset.GenerationsTotal) - before; got != 1 {
		t.Errorf("dataset generations = %v, want exactly 1", got)
	}
}

func TestFetch_PagingProperties(t *testing.T) {
	cfg := DefaultConfig()
	src := random.New(2024)
	sim, _ := newTestSimulator(t, cfg, src)
	sim.Dataset().EnsureInitialized()
	total := sim.Dataset().Len()

	for i := 0; i < 400; i++ {
		offset := (i * 7) % (total + 10)
		r := await(t, sim, OffsetCursor(offset))
		if !r.OK() {
			if r.Err.Class != ClassRateLimit {
				t.Fatalf("unexpected failure class %s at offset %d", r.Err.Class, offset)
			}
			continue
		}

		records := r.Page.Records
		if offset > 0 && offset <= total && len(records) > 0 && records[0] == sim.Dataset().At(offset-1) {
			// duplicate boundary record
			records = records[1:]
		}
		if len(records) > cfg.PageSize.Max {
			t.Fatalf("offset %d: %d records exceeds max page size %d", offset, len(records), cfg.PageSize.Max)
		}

		if r.Page.Next.Present() {
			next, err := r.Page.Next.Offset()
			if err != nil {
				t.Fatalf("offset %d: next %s does not decode", offset, r.Page.Next)
			}
			if next != offset+len(records) || next >= total {
				t.Errorf("offset %d: next = %d with %d records, dataset %d", offset, next, len(records), total)
			}
			continue
		}

		// Next absent: either the end was reached or the empty first page bug fired.
		end := min(total, offset+len(records))
		if end < total && !(offset == 0 && len(records) == 0) {
			t.Errorf("offset %d: next absent but end %d < %d", offset, end, total)
		}
	}
}

func TestFetch_NilCallback(t *testing.T) {
	clock := &testutil.RecordingClock{}
	sim, err := New(fixedConfig(), WithSource(testutil.NewQuietSource()), WithScheduler(clock))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sim.Fetch(NoCursor, nil)

	deadline := time.Now().Add(5 * time.Second)
	for len(clock.Delays()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(clock.Delays()) != 1 {
		t.Fatal("fetch with nil callback was never scheduled")
	}
}

func TestWithDataset_SharesGenerator(t *testing.T) {
	src := testutil.NewQuietSource()
	g, err := dataset.NewGenerator(random.IntRange{Min: 30, Max: 30}, src, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	clock := &testutil.RecordingClock{}
	sim, err := New(fixedConfig(), WithSource(src), WithDataset(g), WithScheduler(clock), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	r := await(t, sim, CursorFrom("25"))
	if !r.OK() {
		t.Fatalf("fetch failed: %v", r.Err)
	}
	assertIDs(t, r.Page.Records, 26, 30)
	if sim.Dataset() != g {
		t.Error("Dataset() should return the injected generator")
	}
}
