package server

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"github.com/zeusync/zid/internal/core/observability/log"
	"github.com/zeusync/zid/internal/core/observability/metrics"
	"github.com/zeusync/zid/pkg/zid"
)

// Id encodings. Ids exceed 2^53, so clients that read JSON numbers as float64
// (JavaScript among them) must ask for FormatString.
const (
	FormatNumber = "number"
	FormatString = "string"
)

// Request asks for N ids. Token is only read by the websocket and QUIC transports.
type Request struct {
	N      int    `json:"n"`
	Token  string `json:"token,omitempty"`
	Format string `json:"format,omitempty"`
}

// Response carries a contiguous batch of ids sharing one timestamp.
type Response struct {
	IDs       []uint64 `json:"ids"`
	Timestamp uint64   `json:"timestamp"`
	Error     string   `json:"error,omitempty"`
	Code      string   `json:"code,omitempty"`

	stringIDs bool
}

// MarshalJSON writes ids as decimal strings when the request asked for FormatString.
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	if !r.stringIDs {
		return json.Marshal(plain(r))
	}

	ids := make([]string, len(r.IDs))
	for k, id := range r.IDs {
		ids[k] = strconv.FormatUint(id, 10)
	}
	return json.Marshal(struct {
		plain
		IDs []string `json:"ids"`
	}{plain: plain(r), IDs: ids})
}

// parseFormat reports whether format selects string ids. Empty means FormatNumber.
func parseFormat(format string) (bool, error) {
	switch format {
	case "", FormatNumber:
		return false, nil
	case FormatString:
		return true, nil
	default:
		return false, errors.Wrapf(ErrInvalidRequest, "format: %q is not %q or %q", format, FormatNumber, FormatString)
	}
}

// Issuer is the transport independent front of the allocator.
type Issuer struct {
	allocator *zid.Allocator
	maxBatch  int
	stats     *metrics.Registry
	logger    log.Log
}

func NewIssuer(allocator *zid.Allocator, maxBatch int, stats *metrics.Registry, logger log.Log) *Issuer {
	if maxBatch <= 0 || maxBatch > zid.MaxBatch {
		maxBatch = zid.MaxBatch
	}
	return &Issuer{
		allocator: allocator,
		maxBatch:  maxBatch,
		stats:     stats,
		logger:    logger.With(log.String("component", "issuer")),
	}
}

// Issue reserves n ids for client over transport. n == 0 yields an empty batch.
func (i *Issuer) Issue(transport, client string, n int) (Response, error) {
	if n < 0 {
		i.stats.Record(transport, client, 0, true)
		return Response{}, errors.Wrapf(ErrInvalidRequest, "n must not be negative, got %d", n)
	}
	// The allocator enforces its own ceiling; a stricter configured cap is checked here.
	if n > i.maxBatch && i.maxBatch < zid.MaxBatch {
		i.stats.Record(transport, client, 0, true)
		return Response{}, errors.Wrapf(ErrBatchLimit, "up to %d ids per request (attempted %d)", i.maxBatch, n)
	}

	ids, err := i.allocator.NextN(n)
	if err != nil {
		i.stats.Record(transport, client, 0, true)
		i.logger.Debug("Batch rejected",
			log.String("transport", transport),
			log.String("client", client),
			log.Int("n", n),
			log.Error(err))
		return Response{}, err
	}

	i.stats.Record(transport, client, len(ids), false)
	resp := Response{IDs: ids}
	if len(ids) > 0 {
		resp.Timestamp = zid.Timestamp(ids[0])
	}
	return resp, nil
}

// Reply builds the response frame for a websocket or QUIC request.
func (i *Issuer) Reply(transport, client string, req Request, auth *Authenticator) Response {
	if err := auth.Authenticate(req.Token); err != nil {
		i.stats.Record(transport, client, 0, true)
		return errorReply(err)
	}
	stringIDs, err := parseFormat(req.Format)
	if err != nil {
		i.stats.Record(transport, client, 0, true)
		return errorReply(err)
	}
	resp, err := i.Issue(transport, client, req.N)
	if err != nil {
		return errorReply(err)
	}
	resp.stringIDs = stringIDs
	return resp
}

func errorReply(err error) Response {
	body := newErrorResponse(err)
	return Response{Error: body.Error, Code: body.Code}
}

// Stats returns the registry the issuer records into.
func (i *Issuer) Stats() *metrics.Registry {
	return i.stats
}
