package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/zid/internal/config"
	"github.com/zeusync/zid/internal/core/observability/log"
	"github.com/zeusync/zid/internal/core/observability/metrics"
)

// QUICServer serves length prefixed JSON requests on every bidirectional stream.
// Each request frame carries its own token when auth is enabled.
type QUICServer struct {
	cfg      config.QUICConfig
	maxFrame int64
	issuer   *Issuer
	auth     *Authenticator
	logger   log.Log

	listener *quic.Listener
	conns    sync.Map // *quic.Conn -> struct{}
	closed   atomic.Bool
	handlers sync.WaitGroup
}

func NewQUICServer(cfg config.QUICConfig, limits config.LimitsConfig, issuer *Issuer, auth *Authenticator, logger log.Log) *QUICServer {
	return &QUICServer{
		cfg:      cfg,
		maxFrame: limits.MaxFrameBytes,
		issuer:   issuer,
		auth:     auth,
		logger:   logger.With(log.String("component", "quic")),
	}
}

// Listen binds the UDP socket.
func (q *QUICServer) Listen() error {
	tlsConfig, err := loadTLSConfig(q.cfg.CertFile, q.cfg.KeyFile)
	if err != nil {
		return err
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:     q.cfg.MaxIdleTimeout,
		MaxIncomingStreams: q.cfg.MaxStreams,
	}

	addr := net.JoinHostPort(q.cfg.Host, strconv.Itoa(q.cfg.Port))
	listener, err := quic.ListenAddr(addr, tlsConfig, quicConfig)
	if err != nil {
		return errors.Wrap(err, "failed to start QUIC listener")
	}
	q.listener = listener
	q.logger.Info("QUIC listener started", log.String("addr", listener.Addr().String()))
	return nil
}

// Addr returns the bound address, nil before Listen.
func (q *QUICServer) Addr() net.Addr {
	if q.listener == nil {
		return nil
	}
	return q.listener.Addr()
}

// Serve accepts connections until Close or ctx is done.
func (q *QUICServer) Serve(ctx context.Context) error {
	if q.listener == nil {
		return ErrServerNotRunning
	}
	defer q.handlers.Wait()

	for {
		conn, err := q.listener.Accept(ctx)
		if err != nil {
			if q.closed.Load() || ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to accept QUIC connection")
		}

		q.handlers.Add(1)
		go func() {
			defer q.handlers.Done()
			q.handleConnection(ctx, conn)
		}()
	}
}

// Close stops accepting connections, closes the listener and every open connection.
func (q *QUICServer) Close() error {
	if !q.closed.CompareAndSwap(false, true) || q.listener == nil {
		return nil
	}
	q.logger.Info("Closing QUIC listener")
	err := q.listener.Close()
	q.conns.Range(func(key, _ any) bool {
		_ = key.(*quic.Conn).CloseWithError(0, "server shutting down")
		return true
	})
	return err
}

func (q *QUICServer) handleConnection(ctx context.Context, conn *quic.Conn) {
	connID := uuid.NewString()
	logger := q.logger.With(
		log.String("connection_id", connID),
		log.String("remote_addr", conn.RemoteAddr().String()))
	logger.Info("QUIC client connected")

	q.conns.Store(conn, struct{}{})
	if q.closed.Load() {
		_ = conn.CloseWithError(0, "server shutting down")
	}

	var streams sync.WaitGroup
	defer func() {
		streams.Wait()
		q.conns.Delete(conn)
		_ = conn.CloseWithError(0, "")
		logger.Info("QUIC client disconnected")
	}()

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			logger.Debug("Stopped accepting streams", log.Error(err))
			return
		}
		streams.Add(1)
		go func() {
			defer streams.Done()
			q.handleStream(stream, connID, logger)
		}()
	}
}

func (q *QUICServer) handleStream(stream *quic.Stream, connID string, logger log.Log) {
	defer func() {
		_ = stream.Close()
	}()

	for {
		payload, err := ReadFrame(stream, q.maxFrame)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("QUIC read failed", log.Error(err))
				if errors.Is(err, ErrFrameTooLarge) {
					_ = q.writeResponse(stream, errorReply(err))
				}
			}
			return
		}

		var resp Response
		var req Request
		if err = json.Unmarshal(payload, &req); err != nil {
			resp = errorReply(errors.Wrap(ErrInvalidRequest, err.Error()))
		} else {
			resp = q.issuer.Reply(metrics.TransportQUIC, connID, req, q.auth)
		}

		if err = q.writeResponse(stream, resp); err != nil {
			logger.Debug("QUIC write failed", log.Error(err))
			return
		}
	}
}

func (q *QUICServer) writeResponse(w io.Writer, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "marshal response")
	}
	return WriteFrame(w, payload)
}
