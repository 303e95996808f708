package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zid/internal/config"
	"github.com/zeusync/zid/internal/core/observability/log"
	"github.com/zeusync/zid/pkg/zid"
)

func startQUICServer(t *testing.T, token string) *QUICServer {
	t.Helper()
	cfg := config.Default()
	cfg.QUIC.Host = "127.0.0.1"
	cfg.QUIC.Port = 0

	q := NewQUICServer(cfg.QUIC, cfg.Limits, newTestIssuer(zid.MaxBatch), NewAuthenticator(token), log.NewNop())
	require.NoError(t, q.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Serve(ctx) }()

	t.Cleanup(func() {
		require.NoError(t, q.Close())
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("QUIC server did not stop")
		}
	})
	return q
}

func openQUICStream(t *testing.T, q *QUICServer) *quic.Stream {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := quic.DialAddr(ctx, q.Addr().String(), &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseWithError(0, "") })

	stream, err := conn.OpenStreamSync(ctx)
	require.NoError(t, err)
	return stream
}

func quicRoundTrip(t *testing.T, rw io.ReadWriter, payload []byte) Response {
	t.Helper()
	require.NoError(t, WriteFrame(rw, payload))
	raw, err := ReadFrame(rw, 1<<20)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func quicRequest(t *testing.T, rw io.ReadWriter, req Request) Response {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	return quicRoundTrip(t, rw, payload)
}

func TestQUIC_Batches(t *testing.T) {
	q := startQUICServer(t, "")
	stream := openQUICStream(t, q)

	first := quicRequest(t, stream, Request{N: 10})
	require.Len(t, first.IDs, 10)
	for i, id := range first.IDs {
		assert.Equal(t, first.IDs[0]+uint64(i), id)
	}
	assert.Equal(t, zid.Timestamp(first.IDs[0]), first.Timestamp)

	second := quicRequest(t, stream, Request{N: 1})
	require.Len(t, second.IDs, 1)
	assert.Greater(t, second.IDs[0], first.IDs[9])

	empty := quicRequest(t, stream, Request{N: 0})
	assert.Empty(t, empty.IDs)
	assert.Empty(t, empty.Error)
}

func TestQUIC_Errors(t *testing.T) {
	q := startQUICServer(t, "")
	stream := openQUICStream(t, q)

	resp := quicRoundTrip(t, stream, []byte("not json"))
	assert.Equal(t, CodeInvalidRequest, resp.Code)

	resp = quicRequest(t, stream, Request{N: zid.MaxBatch + 1})
	assert.Equal(t, CodeBatchTooLarge, resp.Code)

	resp = quicRequest(t, stream, Request{N: 3})
	assert.Len(t, resp.IDs, 3)
}

func TestQUIC_Auth(t *testing.T) {
	q := startQUICServer(t, "secret")
	stream := openQUICStream(t, q)

	resp := quicRequest(t, stream, Request{N: 1})
	assert.Equal(t, CodeUnauthorized, resp.Code)

	resp = quicRequest(t, stream, Request{N: 1, Token: "secret"})
	assert.Empty(t, resp.Error)
	assert.Len(t, resp.IDs, 1)
}

func TestQUIC_ServeBeforeListen(t *testing.T) {
	cfg := config.Default()
	q := NewQUICServer(cfg.QUIC, cfg.Limits, newTestIssuer(zid.MaxBatch), nil, log.NewNop())

	assert.ErrorIs(t, q.Serve(context.Background()), ErrServerNotRunning)
	assert.Nil(t, q.Addr())
	assert.NoError(t, q.Close())
}
