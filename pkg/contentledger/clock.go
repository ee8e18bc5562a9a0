package contentledger

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time in nanoseconds since the Unix epoch.
func (SystemClock) Now() Uint128 {
	return Uint128FromTime(time.Now())
}

// FixedClock always returns the same instant.
type FixedClock Uint128

// Now returns the fixed instant.
func (c FixedClock) Now() Uint128 {
	return Uint128(c)
}

// SteppingClock starts at a given instant and advances by a fixed step on
// every read, so consecutive reads are distinct.
type SteppingClock struct {
	next *atomic.Uint64
	step uint64
}

// NewSteppingClock creates a clock whose first reading is start.
func NewSteppingClock(start, step uint64) *SteppingClock {
	return &SteppingClock{next: atomic.NewUint64(start), step: step}
}

// Now returns the current reading and advances the clock.
func (c *SteppingClock) Now() Uint128 {
	return Uint128FromUint64(c.next.Add(c.step) - c.step)
}

// AtomicSequence is a SequenceCounter held in memory. A host that orders
// transactions itself advances it; the ledger only reads it.
type AtomicSequence struct {
	value *atomic.Uint64
}

// NewAtomicSequence creates a sequence counter starting at start.
func NewAtomicSequence(start uint64) *AtomicSequence {
	return &AtomicSequence{value: atomic.NewUint64(start)}
}

// Current returns the counter value.
func (s *AtomicSequence) Current(ctx context.Context) (uint64, error) {
	return s.value.Load(), nil
}

// Advance increments the counter and returns the new value.
func (s *AtomicSequence) Advance() uint64 {
	return s.value.Inc()
}

// Set overwrites the counter value.
func (s *AtomicSequence) Set(v uint64) {
	s.value.Store(v)
}
