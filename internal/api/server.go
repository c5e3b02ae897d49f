// Package api exposes the HTTP interface for operators.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospector/internal/batch"
	"github.com/JakeFAU/prospector/internal/metrics"
	"github.com/JakeFAU/prospector/internal/prospect"
)

const (
	defaultPreviewLimit = 20
	maxPreviewLimit     = 200
	recentBatches       = 3
)

// Store is the read-only store surface the server needs.
type Store interface {
	Counts(ctx context.Context) (prospect.StatusCounts, error)
	FetchPending(ctx context.Context, limit int) ([]prospect.PendingContact, error)
	Ping(ctx context.Context) error
}

// Config controls the server.
type Config struct {
	// ExportDir is scanned for contact batch files.
	ExportDir      string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the store.
type Server struct {
	router chi.Router
	store  Store
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store Store, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Get("/contacts/pending", s.pending)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type batchView struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

type statsResponse struct {
	prospect.StatusCounts
	Processed int         `json:"processed"`
	Batches   []batchView `json:"batches"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Counts(r.Context())
	if err != nil {
		s.logger.Error("count contacts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "count contacts failed")
		return
	}
	resp := statsResponse{StatusCounts: counts, Processed: counts.Processed(), Batches: []batchView{}}
	if s.cfg.ExportDir != "" {
		files, err := batch.List(s.cfg.ExportDir)
		if err != nil {
			s.logger.Warn("list batches failed", zap.Error(err))
		}
		for i, f := range files {
			if i == recentBatches {
				break
			}
			resp.Batches = append(resp.Batches, batchView{Path: f.Path, ModTime: f.ModTime, Size: f.Size})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type pendingView struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Confidence   *int   `json:"confidence"`
	Priority     string `json:"priority"`
	Domain       string `json:"domain"`
	Organization string `json:"organization"`
	Category     string `json:"category"`
}

func (s *Server) pending(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contacts, err := s.store.FetchPending(r.Context(), limit)
	if err != nil {
		s.logger.Error("fetch pending failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "fetch pending failed")
		return
	}
	out := make([]pendingView, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, pendingView{
			ID:           c.ID,
			Email:        c.Email,
			Name:         c.Name,
			Type:         c.Type,
			Confidence:   c.Confidence,
			Priority:     c.Priority.String(),
			Domain:       c.Domain,
			Organization: c.Organization,
			Category:     c.Category,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": out, "limit": limit})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultPreviewLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if n > maxPreviewLimit {
		n = maxPreviewLimit
	}
	return n, nil
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.String("request_id", reqID),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
