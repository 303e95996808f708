package server

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/zeusync/zid/pkg/zid"
)

var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrBatchLimit           = errors.New("batch exceeds configured limit")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrFrameTooLarge        = errors.New("frame too large")
)

// Error codes carried in response bodies.
const (
	CodeBatchTooLarge  = "batch_too_large"
	CodeInvalidRequest = "invalid_request"
	CodeUnauthorized   = "unauthorized"
	CodeInternal       = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify maps an error onto an HTTP status and a response code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, zid.ErrBatchTooLarge), errors.Is(err, ErrBatchLimit):
		return http.StatusBadRequest, CodeBatchTooLarge
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrFrameTooLarge):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func newErrorResponse(err error) errorResponse {
	_, code := classify(err)
	return errorResponse{Error: err.Error(), Code: code}
}
