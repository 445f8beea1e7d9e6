package web

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/record-overlap/internal/analysis"
	"github.com/record-overlap/internal/log"
	"github.com/record-overlap/internal/web/handlers"
	"github.com/record-overlap/internal/web/middleware"
)

// Server serves a finished run's results read-only
type Server struct {
	config     *Config
	logger     *log.Logger
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a new results server instance
func NewServer(config *Config, results *analysis.Report, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	server := &Server{
		config: config,
		logger: logger,
	}

	server.setupRoutes(results)

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(results *analysis.Report) {
	s.router = mux.NewRouter()

	resultsHandler := &handlers.ResultsHandler{Report: results}

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", resultsHandler.Health).Methods("GET", "OPTIONS")
	api.HandleFunc("/run", resultsHandler.Run).Methods("GET", "OPTIONS")
	api.HandleFunc("/keys", resultsHandler.ListKeys).Methods("GET", "OPTIONS")
	api.HandleFunc("/keys/{name}", resultsHandler.GetKey).Methods("GET", "OPTIONS")
	api.HandleFunc("/hash", resultsHandler.GetHash).Methods("GET", "OPTIONS")

	s.router.Use(middleware.CORS())
	s.router.Use(middleware.RequestLogging(s.logger))

	if s.config.Auth.Enabled {
		api.Use(middleware.Authentication(s.config.Auth.APIKey))
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting results server", log.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	s.logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}
