// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/osmclip/internal/application"
	"github.com/jobrunner/osmclip/internal/config"
	"github.com/jobrunner/osmclip/internal/ports/input"
)

// Server wraps the HTTP server with application handlers.
type Server struct {
	server     *http.Server
	router     *mux.Router
	sessions   *application.SessionManager
	exporter   *application.Exporter
	health     input.HealthChecker
	reaper     *application.Reaper
	categories []string
	logger     *slog.Logger
	config     config.ServerConfig
}

// Option configures optional server features.
type Option func(*Server)

// WithReaper exposes a manual reap endpoint backed by the reaper.
func WithReaper(r *application.Reaper) Option {
	return func(s *Server) {
		s.reaper = r
	}
}

// WithCategories sets the category catalogue served to clients.
func WithCategories(categories []string) Option {
	return func(s *Server) {
		s.categories = append([]string(nil), categories...)
	}
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg config.ServerConfig,
	sessions *application.SessionManager,
	exporter *application.Exporter,
	health input.HealthChecker,
	logger *slog.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		sessions: sessions,
		exporter: exporter,
		health:   health,
		logger:   logger,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	// Add CORS middleware if configured
	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
		// Preflight requests must match a route for the middleware to run.
		r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/formats", s.handleFormats).Methods(http.MethodGet)

	// Session endpoints
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}", s.handleDeleteSession).Methods(http.MethodDelete)

	// Region input
	api.HandleFunc("/sessions/{sessionId}/drawing", s.handleStartDrawing).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/region", s.handleFinishDrawing).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/region", s.handleEditRegion).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{sessionId}/region", s.handleClearRegion).Methods(http.MethodDelete)

	// Extraction and export
	api.HandleFunc("/sessions/{sessionId}/filters", s.handleSetFilters).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{sessionId}/extract", s.handleExtract).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/export", s.handleExport).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/features", s.handleFeatures).Methods(http.MethodGet)

	// Reap endpoint (only if a reaper is configured)
	if s.reaper != nil {
		api.HandleFunc("/reap", s.handleReap).Methods(http.MethodPost)
	}

	// OpenAPI spec and Swagger UI
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.handleSwaggerUI).Methods(http.MethodGet)
	r.HandleFunc("/swagger", s.handleSwaggerUI).Methods(http.MethodGet)

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Use appends middleware to the router.
func (s *Server) Use(mw ...mux.MiddlewareFunc) {
	s.router.Use(mw...)
}

// Mount registers an additional handler, e.g. the metrics endpoint.
func (s *Server) Mount(path string, h http.Handler) {
	s.router.Handle(path, h).Methods(http.MethodGet)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
