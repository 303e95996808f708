package zid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestamp(t *testing.T) {
	tests := []struct {
		name string
		ts   uint64
		seq  uint16
	}{
		{"zero", 0, 0},
		{"max sequence", testMillis, MaxSequence},
		{"max timestamp", 1<<48 - 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Make(tt.ts, tt.seq)
			assert.Equal(t, tt.ts, Timestamp(id))
			assert.Equal(t, tt.seq, Sequence(id))
		})
	}
}

func TestTimestamp_RoundTrip(t *testing.T) {
	a := NewAllocator(WithClock(fixedClock(testMillis)))
	id := a.Next()

	assert.Equal(t, testMillis, Timestamp(id))
	assert.Equal(t, time.UnixMilli(int64(testMillis)).UTC(), Time(id))
}

func TestTimestamp_WallClock(t *testing.T) {
	before := uint64(time.Now().UnixMilli())
	id := NewAllocator().Next()
	after := uint64(time.Now().UnixMilli())

	assert.GreaterOrEqual(t, Timestamp(id), before)
	assert.LessOrEqual(t, Timestamp(id), after)
}

func TestErrorMessage(t *testing.T) {
	err := &BatchTooLargeError{Attempted: 70_000}
	assert.EqualError(t, err, "up to 65536 ids can be generated at once (attempted 70000)")
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}
