package zid

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// SequenceBits is the width of the per millisecond counter.
	SequenceBits = 16
	// MaxSequence is the largest sequence value within one millisecond.
	MaxSequence = math.MaxUint16
	// MaxBatch is the largest number of ids NextN hands out in one reservation.
	MaxBatch = MaxSequence + 1
)

// Option configures an Allocator.
type Option func(a *Allocator)

// WithClock replaces the wall clock. The function returns milliseconds since the unix epoch.
func WithClock(now func() uint64) Option {
	return func(a *Allocator) {
		a.now = now
	}
}

// WithRandom replaces the random source used for fresh starting sequences.
func WithRandom(random func() uint16) Option {
	return func(a *Allocator) {
		a.random = random
	}
}

// Allocator hands out (timestamp, sequence) reservations.
type Allocator struct {
	// last holds (timestamp << 16) | sequence of the most recent reservation.
	// It only ever increases and is only written through CompareAndSwap.
	last atomic.Uint64

	now    func() uint64
	random func() uint16
}

// NewAllocator creates an allocator whose state starts at zero.
func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{
		now:    unixMilli,
		random: nextRandomUint16,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var (
	defaultAllocator     *Allocator
	defaultAllocatorOnce sync.Once
)

// Default returns the process wide allocator, creating it on first use. It lives for
// the rest of the process.
func Default() *Allocator {
	defaultAllocatorOnce.Do(func() { defaultAllocator = NewAllocator() })
	return defaultAllocator
}

// Reserve claims additional+1 consecutive sequence values under one timestamp and
// returns that timestamp and the first sequence value.
func (a *Allocator) Reserve(additional uint16) (uint64, uint16) {
	maxStart := uint16(MaxSequence) - additional
	for {
		now := a.now()
		last := a.last.Load()
		lastTime := last >> SequenceBits
		lastSeq := uint16(last)

		ts := max(lastTime, now)

		var start uint16
		switch {
		case ts != lastTime:
			start = a.randomStart(maxStart)
		case lastSeq < MaxSequence && lastSeq+1 <= maxStart:
			start = lastSeq + 1
		default:
			// Sequence space of this millisecond is used up, borrow the next one.
			ts = lastTime + 1
			start = a.randomStart(maxStart)
		}

		end := start + additional // wraps mod 2^16, cannot overflow as start <= maxStart
		if a.last.CompareAndSwap(last, Make(ts, end)) {
			return ts, start
		}
		runtime.Gosched()
	}
}

// randomStart draws a starting sequence in [0, maxStart]. The modulo reduction is
// slightly biased when maxStart+1 does not divide 65536; ids depend on this exact scheme.
func (a *Allocator) randomStart(maxStart uint16) uint16 {
	switch maxStart {
	case 0:
		return 0
	case MaxSequence:
		return a.random()
	default:
		return uint16(uint32(a.random()) % (uint32(maxStart) + 1))
	}
}

// Next returns a single new id.
func (a *Allocator) Next() uint64 {
	ts, seq := a.Reserve(0)
	return Make(ts, seq)
}

// NextN returns n contiguous ids sharing one timestamp, reserved in one step.
// n <= 0 yields an empty slice without touching the allocator state.
func (a *Allocator) NextN(n int) ([]uint64, error) {
	if n <= 0 {
		return []uint64{}, nil
	}
	if n > MaxBatch {
		return nil, &BatchTooLargeError{Attempted: n}
	}
	return a.AppendN(make([]uint64, 0, n), n)
}

// AppendN appends n contiguous ids to dst, see NextN.
func (a *Allocator) AppendN(dst []uint64, n int) ([]uint64, error) {
	if n <= 0 {
		return dst, nil
	}
	if n > MaxBatch {
		return dst, &BatchTooLargeError{Attempted: n}
	}

	ts, start := a.Reserve(uint16(n - 1))
	for i := 0; i < n; i++ {
		dst = append(dst, Make(ts, start+uint16(i)))
	}
	return dst, nil
}

func unixMilli() uint64 {
	ms := time.Now().UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}
