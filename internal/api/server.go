package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"whsync/internal/state"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server provides HTTP API endpoints over the capability state manager
type Server struct {
	manager  *state.Manager
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   chi.Router
	server   *http.Server
}

// NewServer creates a new API server. Metrics are served from gatherer.
func NewServer(manager *state.Manager, gatherer prometheus.Gatherer, logger *zap.Logger, addr string) *Server {
	s := &Server{
		manager:  manager,
		gatherer: gatherer,
		logger:   logger.Named("api"),
	}

	s.router = s.routes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/", s.handleSitemap)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/capabilities", s.handleListCapabilities)
		api.Get("/capabilities/{id}", s.handleGetCapability)
		api.Put("/capabilities/{id}/enabled", s.handleSetEnabled)
		api.Put("/capabilities/{id}/override", s.handleSetOverride)
		api.Get("/status", s.handleStatus)
		api.Put("/preset", s.handleSetPreset)
		api.Put("/periodic-updates", s.handleSetPeriodicUpdates)
		api.Post("/apply", s.handleApply)
		api.Post("/reset", s.handleReset)
		api.Post("/refresh", s.handleRefresh)
		api.Post("/events", s.handleTriggerEvent)
		api.Get("/version", s.handleVersion)
	})

	return r
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}

// requestLogger logs basic structured request/response metadata
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startedAt := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(startedAt)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap"},
	{Path: "/health", Method: "GET", Description: "Health check, returns {\"status\": \"ok\"}"},
	{Path: "/metrics", Method: "GET", Description: "Prometheus metrics"},
	{Path: "/api/capabilities", Method: "GET", Description: "List capabilities with their local state"},
	{Path: "/api/capabilities/{id}", Method: "GET", Description: "Get one capability"},
	{Path: "/api/capabilities/{id}/enabled", Method: "PUT", Description: "Stage an enabled flag {\"enabled\": bool}"},
	{Path: "/api/capabilities/{id}/override", Method: "PUT", Description: "Stage an override {\"value\": number|null}"},
	{Path: "/api/status", Method: "GET", Description: "Engine status, preset and exercise flag"},
	{Path: "/api/preset", Method: "PUT", Description: "Select a preset {\"preset\": \"ALL\"|\"STANDARD\"|\"CUSTOM\"}"},
	{Path: "/api/periodic-updates", Method: "PUT", Description: "Start or stop polling {\"enabled\": bool}"},
	{Path: "/api/apply", Method: "POST", Description: "Push pending edits to the device"},
	{Path: "/api/reset", Method: "POST", Description: "Reset the device to the ALL preset"},
	{Path: "/api/refresh", Method: "POST", Description: "Reconcile with the device now"},
	{Path: "/api/events", Method: "POST", Description: "Trigger a device event {\"key\": string, \"label\": string}"},
	{Path: "/api/version", Method: "GET", Description: "Whether the device's Health Services version is supported"},
}

// handleSitemap returns a plain-text list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Capability Sync API\n")
	fmt.Fprintf(w, "===================\n\n")
	fmt.Fprintf(w, "Available endpoints:\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %-6s %-32s %s\n", ep.Method, ep.Path, ep.Description)
	}
}
