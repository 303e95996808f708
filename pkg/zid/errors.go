package zid

import (
	"errors"
	"fmt"
)

// ErrBatchTooLarge is matched by every error returned for a batch above MaxBatch.
var ErrBatchTooLarge = errors.New("batch too large")

// BatchTooLargeError reports the rejected batch size.
type BatchTooLargeError struct {
	Attempted int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("up to %d ids can be generated at once (attempted %d)", MaxBatch, e.Attempted)
}

func (e *BatchTooLargeError) Unwrap() error {
	return ErrBatchTooLarge
}
