// Package testutil provides deterministic randomness and time for tests.
package testutil

import (
	"sync"
	"time"
)

// ScriptedSource is a random.Source that replays queued draws.
//
// Float64 pops from Floats and falls back to DefaultFloat once the queue is
// empty. IntN pops from Ints (clamped into [0, n)) and falls back to 0.
// Shuffle leaves the order untouched unless Reverse is set.
type ScriptedSource struct {
	mu sync.Mutex

	Floats       []float64
	Ints         []int
	DefaultFloat float64
	Reverse      bool

	floatCalls int
	intCalls   int
}

// NewQuietSource returns a source whose rolls never trigger any probability
// below 1 and whose shuffle keeps ids in order.
func NewQuietSource() *ScriptedSource {
	return &ScriptedSource{DefaultFloat: 0.999999}
}

// Float64 implements random.Source.
func (s *ScriptedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.floatCalls++
	if len(s.Floats) == 0 {
		return s.DefaultFloat
	}
	v := s.Floats[0]
	s.Floats = s.Floats[1:]
	return v
}

// IntN implements random.Source.
func (s *ScriptedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.intCalls++
	if len(s.Ints) == 0 {
		return 0
	}
	v := s.Ints[0]
	s.Ints = s.Ints[1:]
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

// Shuffle implements random.Source.
func (s *ScriptedSource) Shuffle(n int, swap func(i, j int)) {
	if !s.Reverse {
		return
	}
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		swap(i, j)
	}
}

// QueueFloats appends draws for upcoming Float64 calls.
func (s *ScriptedSource) QueueFloats(v ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Floats = append(s.Floats, v...)
}

// FloatCalls returns how many Float64 draws were taken.
func (s *ScriptedSource) FloatCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.floatCalls
}

// RecordingClock schedules callbacks immediately on a new goroutine and
// remembers every requested delay.
type RecordingClock struct {
	mu     sync.Mutex
	delays []time.Duration
}

// AfterFunc records d and runs f without waiting.
func (c *RecordingClock) AfterFunc(d time.Duration, f func()) {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()

	go f()
}

// Delays returns the recorded delays in scheduling order.
func (c *RecordingClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]time.Duration, len(c.delays))
	copy(out, c.delays)
	return out
}

// LastDelay returns the most recently recorded delay.
func (c *RecordingClock) LastDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.delays) == 0 {
		return 0
	}
	return c.delays[len(c.delays)-1]
}
