package client

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/zeusync/zid/internal/server"
	"github.com/zeusync/zid/pkg/zid"
)

// Client-specific errors
var (
	ErrClientClosed     = errors.New("client is closed")
	ErrNotConnected     = errors.New("client is not connected")
	ErrAlreadyConnected = errors.New("client is already connected")
	ErrInvalidConfig    = errors.New("invalid client configuration")
	ErrUnauthorized     = errors.New("unauthorized")
)

// ServerError is an error reply sent by the daemon.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("zid server: %s (%s)", e.Message, e.Code)
}

// Unwrap maps well known codes onto sentinels, so errors.Is(err, zid.ErrBatchTooLarge)
// holds for a batch rejected by the server.
func (e *ServerError) Unwrap() error {
	switch e.Code {
	case server.CodeBatchTooLarge:
		return zid.ErrBatchTooLarge
	case server.CodeUnauthorized:
		return ErrUnauthorized
	default:
		return nil
	}
}
