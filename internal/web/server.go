// Package web serves stored pipeline runs over a read-only JSON API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/metrics"
	"github.com/oar-pipeline/internal/store"
	"github.com/oar-pipeline/internal/web/handlers"
	"github.com/oar-pipeline/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     Config
	store      *store.Store
	metrics    *metrics.Metrics
	log        *zap.Logger
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a new web server instance. m may be nil, in which case
// /metrics is not served.
func NewServer(cfg Config, st *store.Store, m *metrics.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	server := &Server{
		config:  cfg,
		store:   st,
		metrics: m,
		log:     log,
	}
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return server
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	runsHandler := &handlers.RunsHandler{Store: s.store, Log: s.log}
	recordsHandler := &handlers.RecordsHandler{Store: s.store, Log: s.log}
	mapsHandler := &handlers.MapsHandler{Store: s.store, Log: s.log}

	api := s.router.PathPrefix("/api").Subrouter()

	// Run endpoints
	api.HandleFunc("/runs", runsHandler.ListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/latest", runsHandler.LatestRun).Methods(http.MethodGet)
	api.HandleFunc("/stats", runsHandler.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/validation", runsHandler.GetValidation).Methods(http.MethodGet)

	// Entity endpoints
	api.HandleFunc("/companies", recordsHandler.ListCompanies).Methods(http.MethodGet)
	api.HandleFunc("/companies/{id}", recordsHandler.GetCompany).Methods(http.MethodGet)
	api.HandleFunc("/facilities", recordsHandler.ListFacilities).Methods(http.MethodGet)
	api.HandleFunc("/facilities/geojson", mapsHandler.GetGeoJSON).Methods(http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	s.router.Use(middleware.RequestLogging(s.log, s.metrics))
	if s.config.APIKey != "" {
		api.Use(middleware.Authentication(s.config.APIKey))
	}

	// CORS wraps the router so preflight requests never reach method matching.
	s.handler = middleware.CORS(s.config.CORSOrigins)(s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting server", zap.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("Server stopped")
	return nil
}
