package server

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/zid/internal/config"
	"github.com/zeusync/zid/internal/core/observability/log"
	"github.com/zeusync/zid/internal/core/observability/metrics"
	"github.com/zeusync/zid/pkg/zid"
)

// Server runs the enabled id transports.
type Server struct {
	cfg    *config.Config
	issuer *Issuer
	logger log.Log

	http     *HTTPServer
	httpAddr net.Addr
	quic     *QUICServer

	group *errgroup.Group

	running atomic.Bool
	closed  atomic.Bool
}

func NewServer(cfg *config.Config, allocator *zid.Allocator, stats *metrics.Registry, logger log.Log) *Server {
	issuer := NewIssuer(allocator, cfg.Limits.MaxBatch, stats, logger)
	auth := NewAuthenticator(cfg.Auth.Token)

	s := &Server{
		cfg:    cfg,
		issuer: issuer,
		logger: logger.With(log.String("component", "server")),
	}

	if cfg.HTTP.Enabled {
		var ws *WebSocketHandler
		if cfg.WebSocket.Enabled {
			ws = NewWebSocketHandler(cfg.WebSocket, cfg.Limits, issuer, logger)
		}
		s.http = NewHTTPServer(cfg.HTTP, issuer, ws, cfg.WebSocket.Path, auth, logger)
	}
	if cfg.QUIC.Enabled {
		s.quic = NewQUICServer(cfg.QUIC, cfg.Limits, issuer, auth, logger)
	}

	s.logger.Info("Server created",
		log.Bool("http", cfg.HTTP.Enabled),
		log.Bool("websocket", cfg.HTTP.Enabled && cfg.WebSocket.Enabled),
		log.Bool("quic", cfg.QUIC.Enabled),
		log.Int("max_batch", cfg.Limits.MaxBatch),
		log.Bool("auth", auth.Enabled()))

	return s
}

// Start binds every enabled listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if s.http != nil {
		ln, err := net.Listen("tcp", s.http.server.Addr)
		if err != nil {
			s.running.Store(false)
			return errors.Wrap(err, "failed to start HTTP listener")
		}
		s.httpAddr = ln.Addr()
		s.logger.Info("HTTP listener started", log.String("addr", ln.Addr().String()))

		group.Go(func() error {
			if err := s.http.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "HTTP server failed")
			}
			return nil
		})
	}

	if s.quic != nil {
		if err := s.quic.Listen(); err != nil {
			s.running.Store(false)
			if s.http != nil {
				_ = s.http.server.Close()
			}
			return err
		}
		group.Go(func() error {
			return s.quic.Serve(groupCtx)
		})
	}

	s.group = group
	return nil
}

// HTTPAddr returns the bound HTTP address, nil if HTTP is disabled or not started.
func (s *Server) HTTPAddr() net.Addr {
	return s.httpAddr
}

// QUICAddr returns the bound QUIC address, nil if QUIC is disabled or not started.
func (s *Server) QUICAddr() net.Addr {
	if s.quic == nil {
		return nil
	}
	return s.quic.Addr()
}

// Stats returns the issuance counters.
func (s *Server) Stats() metrics.Snapshot {
	return s.issuer.Stats().Snapshot()
}

// Stop shuts the listeners down and waits for the serving goroutines.
// A stopped server cannot be started again.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}
	s.closed.Store(true)
	s.logger.Info("Stopping server")

	var stopErr error
	if s.http != nil {
		shutdownCtx := ctx
		if timeout := s.cfg.HTTP.ShutdownTimeout; timeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			stopErr = errors.Wrap(err, "HTTP shutdown")
		}
	}
	if s.quic != nil {
		if err := s.quic.Close(); err != nil && stopErr == nil {
			stopErr = errors.Wrap(err, "QUIC shutdown")
		}
	}

	if err := s.group.Wait(); err != nil && stopErr == nil {
		stopErr = err
	}
	s.logger.Info("Server stopped")
	return stopErr
}

// Close stops the server if it is running and prevents any later Start.
func (s *Server) Close() error {
	s.closed.Store(true)
	if err := s.Stop(context.Background()); err != nil && !errors.Is(err, ErrServerNotRunning) {
		return err
	}
	return nil
}

// Run starts the server and blocks until ctx is done or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.Start(runCtx); err != nil {
		return err
	}

	failed := make(chan error, 1)
	go func() {
		failed <- s.group.Wait()
		cancel()
	}()

	<-runCtx.Done()
	stopErr := s.Stop(context.Background())

	if err := <-failed; err != nil {
		return err
	}
	return stopErr
}
