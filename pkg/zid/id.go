package zid

import "time"

// Make composes an id from a millisecond timestamp and a sequence value.
func Make(timestamp uint64, sequence uint16) uint64 {
	return timestamp<<SequenceBits | uint64(sequence)
}

// Timestamp returns the milliseconds since the unix epoch embedded in id.
func Timestamp(id uint64) uint64 {
	return id >> SequenceBits
}

// Sequence returns the sequence part of id.
func Sequence(id uint64) uint16 {
	return uint16(id)
}

// Time returns the embedded timestamp as a UTC time.
func Time(id uint64) time.Time {
	return time.UnixMilli(int64(Timestamp(id))).UTC()
}

// Next returns a new id from the process wide allocator.
func Next() uint64 {
	return Default().Next()
}

// NextN returns n contiguous ids from the process wide allocator.
func NextN(n int) ([]uint64, error) {
	return Default().NextN(n)
}
