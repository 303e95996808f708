// Package zid generates compact, time ordered, process unique 64 bit identifiers.
//
// An id is laid out as
//
//	| 48 bits: milliseconds since the unix epoch | 16 bits: sequence |
//
// so integer order matches (timestamp, sequence) order. The allocator keeps a single
// atomic word holding the most recently issued pair and moves it forward with a
// compare-and-swap loop; there is no mutex anywhere on the hot path.
//
// When a new millisecond starts the sequence begins at a random offset, which keeps
// ids from different processes from clustering at sequence zero. When a millisecond
// runs out of sequence values the allocator borrows the next millisecond, so the
// embedded timestamp may run slightly ahead of the wall clock under heavy load.
//
// Usage
//
//	id := zid.Next()
//	batch, err := zid.NextN(100) // contiguous, all share one timestamp
//	ms := zid.Timestamp(id)
//
// Uniqueness is only guaranteed within one process lifetime.
package zid
