// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/substantiate/internal/logging"
	"github.com/ppiankov/substantiate/internal/metrics"
	"github.com/ppiankov/substantiate/internal/model"
	"github.com/ppiankov/substantiate/internal/pipeline"
	"github.com/ppiankov/substantiate/internal/storage"
)

const maxBodyBytes = 1 << 20

type Server struct {
	router  *chi.Mux
	engine  *pipeline.Engine
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewServer(engine *pipeline.Engine, cfg model.ServerConfig, logger logging.Logger, m *metrics.Metrics) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:  r,
		engine:  engine,
		logger:  logging.OrDefault(logger).Named("api"),
		metrics: m,
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/claims/{claimID}", func(r chi.Router) {
			r.Post("/links", s.handleCreateLink)
			r.Post("/link", s.handleLinkClaim)
			r.Post("/audit", s.handleAuditClaim)
			r.Post("/suggestions/{documentID}/accept", s.handleAcceptSuggestion)
		})
		r.Delete("/links/{linkID}", s.handleDeleteLink)
		r.Delete("/suggestions/{documentID}", s.handleRejectSuggestion)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/relink", s.handleRelinkProject)
			r.Post("/audit", s.handleAuditProject)
			r.Post("/auto-find", s.handleAutoFind)
		})

		r.Post("/literature/search", s.handleLiteratureSearch)
		r.Post("/compliance/check", s.handleComplianceCheck)
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", logging.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("duration", time.Since(start)),
			logging.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Helper to send JSON responses
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps engine errors onto status codes
func (s *Server) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrNotSuggestion), errors.Is(err, pipeline.ErrProjectMismatch):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled):
		respondError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error("request failed", logging.String("path", r.URL.Path), logging.Err(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
