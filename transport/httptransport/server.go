// Package httptransport carries sync requests over HTTP with JSON bodies.
// Client implements synckit.Transport; Server exposes any synckit.Responder.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c0deZ3R0/go-merkle-sync/logging"
	"github.com/c0deZ3R0/go-merkle-sync/synckit"
)

// Server serves POST /sync, GET /healthz and, when a gatherer is set,
// GET /metrics.
type Server struct {
	responder synckit.Responder
	options   *ServerOptions
	logger    *logging.Logger
	gatherer  prometheus.Gatherer
	router    chi.Router
}

// NewServer builds a Server answering with responder.
func NewServer(responder synckit.Responder, opts ...ServerOption) (*Server, error) {
	if responder == nil {
		return nil, fmt.Errorf("responder is required")
	}

	s := &Server{
		responder: responder,
		options:   DefaultServerOptions(),
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := ValidateServerOptions(s.options); err != nil {
		return nil, fmt.Errorf("invalid server options: %w", err)
	}
	s.logger = s.logger.WithComponent("transport/http")
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.options.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.options.RequestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"}, nil)
	})
	r.Post(SyncPath, s.handleSync)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := logging.ContextWithRequestID(r.Context(), middleware.GetReqID(r.Context()))
	logger := s.logger.WithContext(ctx)

	reader, cleanup, err := safeRequestReader(w, r, s.options)
	defer cleanup()
	if err != nil {
		s.rejectBody(w, r, logger, err)
		return
	}

	var req synckit.SyncRequest
	if err := json.NewDecoder(reader).Decode(&req); err != nil {
		s.rejectBody(w, r, logger, err)
		return
	}

	logger.Debug("handling sync request",
		slog.String("client_id", req.ClientID),
		slog.String("group_id", req.GroupID),
		slog.Int("message_count", len(req.Messages)))

	resp := s.responder.Handle(ctx, req)
	if resp.Status != synckit.StatusOK {
		logger.Warn("sync request rejected",
			slog.String("client_id", req.ClientID),
			slog.String("reason", resp.Reason))
	}
	respondWithJSON(w, r, http.StatusOK, resp, s.options)
}

func (s *Server) rejectBody(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	status := statusForBodyError(err)
	logger.Warn("invalid sync request body",
		slog.Int("status_code", status),
		slog.String("error", err.Error()))
	respondWithJSON(w, r, status, synckit.Failure(err.Error()), s.options)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("sync server listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.options.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down sync server", slog.Duration("timeout", timeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
