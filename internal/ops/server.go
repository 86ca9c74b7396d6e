// Package ops exposes the sync daemon's own health and statistics on a
// local HTTP endpoint, so operators can check on a headless daemon
// without reading logs.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	enginesync "github.com/ElektryonUK/storjcloud-client/internal/sync"
)

// StatsSource reports the sync engine's lifetime counters.
type StatsSource interface {
	Stats() enginesync.Stats
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// Server serves the daemon's status endpoint. It is intended for
// loopback addresses only; it carries no authentication.
type Server struct {
	addr      string
	version   string
	startedAt time.Time
	engine    StatsSource
	router    chi.Router
	srv       *http.Server
	logger    *slog.Logger
}

// NewServer creates a status endpoint server for the given engine.
func NewServer(addr, version string, engine StatsSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:      addr,
		version:   version,
		startedAt: time.Now(),
		engine:    engine,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	s.router = r

	return s
}

// Name identifies the server to the shutdown coordinator.
func (s *Server) Name() string { return "status-endpoint" }

// Router returns the handler, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start serves until the context ends or the listener fails. It blocks
// for the server's whole life.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("status endpoint listening", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status endpoint: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "sync engine not attached",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encoding status response failed", "error", err)
	}
}
