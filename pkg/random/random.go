// Package random provides the injectable randomness used by the dataset
// generator and the fetch simulator.
//
// Every random decision the simulator makes goes through a Source, so tests can
// replace it with a scripted one and force specific branches (failures,
// duplicated boundary records, empty first pages).
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"
)

// Source is the minimal randomness surface used by this module.
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64

	// IntN returns a value in [0, n). It panics if n <= 0.
	IntN(n int) int

	// Shuffle pseudo-randomizes the order of n elements using swap.
	Shuffle(n int, swap func(i, j int))
}

// New returns a Source seeded with seed. A zero seed draws one from crypto/rand.
func New(seed uint64) Source {
	if seed == 0 {
		var b [8]byte
		_, _ = crand.Read(b[:])
		seed = binary.LittleEndian.Uint64(b[:])
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// IntRange is a closed integer range [Min, Max].
type IntRange struct {
	Min int
	Max int
}

// Validate reports whether the range is well formed and its lower bound is at
// least floor.
func (r IntRange) Validate(floor int) error {
	if r.Min < floor {
		return fmt.Errorf("lower bound must be >= %d (got %d)", floor, r.Min)
	}
	if r.Max < r.Min {
		return fmt.Errorf("upper bound %d is below lower bound %d", r.Max, r.Min)
	}
	return nil
}

// DurationRange is a closed duration range [Min, Max].
type DurationRange struct {
	Min time.Duration
	Max time.Duration
}

// Validate reports whether the range is well formed with a non-negative lower bound.
func (r DurationRange) Validate() error {
	if r.Min < 0 {
		return fmt.Errorf("lower bound must be >= 0 (got %s)", r.Min)
	}
	if r.Max < r.Min {
		return fmt.Errorf("upper bound %s is below lower bound %s", r.Max, r.Min)
	}
	return nil
}

// Int draws uniformly from the closed range r.
func Int(src Source, r IntRange) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + src.IntN(r.Max-r.Min+1)
}

// Duration draws uniformly from the closed range r.
func Duration(src Source, r DurationRange) time.Duration {
	span := r.Max - r.Min
	if span <= 0 {
		return r.Min
	}
	return r.Min + time.Duration(src.Float64()*float64(span))
}

// Roll draws once from the half-open interval [0, 1) and reports whether the
// draw landed at or below probability. A probability of 1 always succeeds.
func Roll(src Source, probability float64) bool {
	return src.Float64() <= probability
}

// Pick returns a uniformly chosen element of items. items must not be empty.
func Pick[T any](src Source, items []T) T {
	return items[src.IntN(len(items))]
}
