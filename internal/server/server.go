package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mail-agent/internal/auditlog"
	"mail-agent/internal/workers"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// StatsSource reports live agent statistics
type StatsSource interface {
	Stats() workers.Stats
}

// History reads mirrored decisions
type History interface {
	Recent(ctx context.Context, limit int) ([]auditlog.Entry, error)
	CountByAction(ctx context.Context) (map[string]int, error)
}

// Server exposes agent status over HTTP
type Server struct {
	addr            string
	shutdownTimeout time.Duration
	stats           StatsSource
	history         History
	logger          *slog.Logger
	router          chi.Router
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Status    string         `json:"status"`
	Agent     workers.Stats  `json:"agent"`
	Decisions map[string]int `json:"decisions,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates a status server. history may be nil.
func New(addr string, shutdownTimeout time.Duration, stats StatsSource, history History, logger *slog.Logger) *Server {
	s := &Server{
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		stats:           stats,
		history:         history,
		logger:          logger.With("component", "server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(ContentTypeMiddleware)
	r.Use(SecurityMiddleware)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/decisions", s.handleDecisions)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", "addr", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Status server forced to shut down", "error", err)
		return fmt.Errorf("failed to shut down status server: %w", err)
	}
	s.logger.Info("Status server shut down")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{Status: "ok", Agent: s.stats.Stats()}

	if s.history != nil {
		counts, err := s.history.CountByAction(r.Context())
		if err != nil {
			s.logger.Warn("Failed to count decisions", "error", err)
		} else {
			response.Decisions = counts
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: auditlog.ErrHistoryDisabled.Error()})
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to read decisions", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read decisions"})
		return
	}
	if entries == nil {
		entries = []auditlog.Entry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
