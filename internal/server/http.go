package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zeusync/zid/internal/config"
	"github.com/zeusync/zid/internal/core/observability/log"
	"github.com/zeusync/zid/internal/core/observability/metrics"
	"github.com/zeusync/zid/pkg/zid"
)

const requestIDHeader = "X-Request-Id"

type idResponse struct {
	ID        uint64 `json:"id"`
	Timestamp uint64 `json:"timestamp"`
}

type idStringResponse struct {
	ID        uint64 `json:"id,string"`
	Timestamp uint64 `json:"timestamp"`
}

type timestampResponse struct {
	ID        uint64    `json:"id"`
	Timestamp uint64    `json:"timestamp"`
	Sequence  uint16    `json:"sequence"`
	Time      time.Time `json:"time"`
}

// HTTPServer exposes the issuer over plain HTTP and mounts the websocket endpoint.
type HTTPServer struct {
	server *http.Server
	ws     *WebSocketHandler
	issuer *Issuer
	auth   *Authenticator
	logger log.Log
}

func NewHTTPServer(cfg config.HTTPConfig, issuer *Issuer, ws *WebSocketHandler, wsPath string, auth *Authenticator, logger log.Log) *HTTPServer {
	s := &HTTPServer{
		ws:     ws,
		issuer: issuer,
		auth:   auth,
		logger: logger.With(log.String("component", "http")),
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /v1/id", s.handleID)
	api.HandleFunc("GET /v1/ids", s.handleIDs)
	api.HandleFunc("GET /v1/ids/{id}/timestamp", s.handleTimestamp)
	api.HandleFunc("GET /v1/stats", s.handleStats)
	if ws != nil {
		api.Handle("GET "+wsPath, ws)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("/", auth.Middleware(api))

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.withRequestID(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Shutdown stops the HTTP server gracefully, then closes open websocket sessions.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if s.ws != nil {
		s.ws.Close()
	}
	return err
}

// Handler returns the root handler, including middlewares.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleID(w http.ResponseWriter, r *http.Request) {
	stringIDs, err := parseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.issuer.Issue(metrics.TransportHTTP, clientKey(r), 1)
	if err != nil {
		writeError(w, err)
		return
	}
	if stringIDs {
		writeJSON(w, http.StatusOK, idStringResponse{ID: resp.IDs[0], Timestamp: resp.Timestamp})
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: resp.IDs[0], Timestamp: resp.Timestamp})
}

func (s *HTTPServer) handleIDs(w http.ResponseWriter, r *http.Request) {
	n := 1
	if raw := r.URL.Query().Get("n"); raw != "" {
		var err error
		if n, err = strconv.Atoi(raw); err != nil {
			writeError(w, errors.Wrapf(ErrInvalidRequest, "n: %q is not an integer", raw))
			return
		}
	}

	stringIDs, err := parseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.issuer.Issue(metrics.TransportHTTP, clientKey(r), n)
	if err != nil {
		s.logger.WithContext(r.Context()).Debug("Request rejected", log.Error(err))
		writeError(w, err)
		return
	}
	resp.stringIDs = stringIDs
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleTimestamp(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, errors.Wrapf(ErrInvalidRequest, "id: %q is not an unsigned integer", raw))
		return
	}
	writeJSON(w, http.StatusOK, timestampResponse{
		ID:        id,
		Timestamp: zid.Timestamp(id),
		Sequence:  zid.Sequence(id),
		Time:      zid.Time(id),
	})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.issuer.Stats().Snapshot())
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withRequestID tags every request with an id, logs it and echoes the id back.
func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := log.ContextWithRequestID(r.Context(), requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.WithContext(ctx).Debug("HTTP request",
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Int("status", rec.status),
			log.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, _ := classify(err)
	writeJSON(w, status, newErrorResponse(err))
}
