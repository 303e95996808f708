// Package client provides a QUIC client for the zid daemon.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/zid/internal/core/observability/log"
	"github.com/zeusync/zid/internal/server"
	"github.com/zeusync/zid/pkg/zid"
)

// Client requests id batches over a single QUIC connection. Every request uses
// its own stream, so a Client is safe for concurrent use.
type Client struct {
	conn atomic.Pointer[quic.Conn]

	connected atomic.Bool
	closed    atomic.Bool

	config Config
	logger log.Log
}

// Config holds configuration for the client
type Config struct {
	ServerAddr     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	// Token is sent with every request when the daemon has auth enabled.
	Token string

	// TLSConfig overrides the default TLS settings. ALPN is always set to server.ALPN.
	TLSConfig *tls.Config

	// MaxResponseBytes caps a single reply frame. A full batch of 65536 ids
	// needs a little over 1 MiB.
	MaxResponseBytes int64

	MaxIdleTimeout time.Duration

	Logger log.Log
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerAddr:       "localhost:8443",
		ConnectTimeout:   10 * time.Second,
		RequestTimeout:   5 * time.Second,
		MaxResponseBytes: 2 * 1024 * 1024,
		MaxIdleTimeout:   60 * time.Second,
	}
}

func NewClient(config Config) *Client {
	logger := config.Logger
	if logger == nil {
		logger = log.Provide()
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = DefaultClientConfig().MaxResponseBytes
	}

	return &Client{
		config: config,
		logger: logger.With(log.String("component", "client"), log.String("server_addr", config.ServerAddr)),
	}
}

// Connect dials the daemon.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.config.ServerAddr == "" {
		return errors.Wrap(ErrInvalidConfig, "server address is empty")
	}
	if !c.connected.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}

	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	var tlsConfig *tls.Config
	if c.config.TLSConfig != nil {
		tlsConfig = c.config.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS13}
	}
	tlsConfig.NextProtos = []string{server.ALPN}

	conn, err := quic.DialAddr(ctx, c.config.ServerAddr, tlsConfig, &quic.Config{
		MaxIdleTimeout:  c.config.MaxIdleTimeout,
		KeepAlivePeriod: c.config.MaxIdleTimeout / 2,
	})
	if err != nil {
		c.connected.Store(false)
		c.logger.Error("Failed to connect to server", log.Error(err))
		return errors.Wrap(err, "dial zid server")
	}
	c.conn.Store(conn)

	c.logger.Info("Connected to server",
		log.String("local_addr", conn.LocalAddr().String()),
		log.String("remote_addr", conn.RemoteAddr().String()))
	return nil
}

// Next returns a single id.
func (c *Client) Next(ctx context.Context) (uint64, error) {
	ids, err := c.NextN(ctx, 1)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// NextN returns n contiguous ids. n <= 0 yields an empty slice without a round trip.
func (c *Client) NextN(ctx context.Context, n int) ([]uint64, error) {
	if n <= 0 {
		return []uint64{}, nil
	}
	if n > zid.MaxBatch {
		return nil, &zid.BatchTooLargeError{Attempted: n}
	}

	resp, err := c.roundTrip(ctx, server.Request{N: n, Token: c.config.Token})
	if err != nil {
		return nil, err
	}
	if resp.Code != "" {
		return nil, &ServerError{Code: resp.Code, Message: resp.Error}
	}
	if len(resp.IDs) != n {
		return nil, errors.Errorf("zid server returned %d ids, requested %d", len(resp.IDs), n)
	}
	return resp.IDs, nil
}

func (c *Client) roundTrip(ctx context.Context, req server.Request) (server.Response, error) {
	if c.closed.Load() {
		return server.Response{}, ErrClientClosed
	}
	conn := c.conn.Load()
	if conn == nil {
		return server.Response{}, ErrNotConnected
	}

	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return server.Response{}, errors.Wrap(err, "open stream")
	}
	defer stream.CancelRead(0)
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return server.Response{}, errors.Wrap(err, "marshal request")
	}
	if err = server.WriteFrame(stream, payload); err != nil {
		return server.Response{}, errors.Wrap(err, "write request")
	}
	// One request per stream; closing the send side lets the server finish it.
	if err = stream.Close(); err != nil {
		return server.Response{}, errors.Wrap(err, "close stream")
	}

	raw, err := server.ReadFrame(stream, c.config.MaxResponseBytes)
	if err != nil {
		return server.Response{}, errors.Wrap(err, "read response")
	}

	var resp server.Response
	if err = json.Unmarshal(raw, &resp); err != nil {
		return server.Response{}, errors.Wrap(err, "decode response")
	}
	return resp, nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load() && !c.closed.Load()
}

func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// Close closes the connection. The client cannot be reused.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if conn := c.conn.Swap(nil); conn != nil {
		c.logger.Info("Disconnecting from server")
		return conn.CloseWithError(0, "client closed")
	}
	return nil
}
