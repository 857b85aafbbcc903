// Package api provides the HTTP control surface of the mirror daemon.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/channel-mirror/internal/logging"
	"github.com/channel-mirror/internal/mirror"
	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/types"
)

// Service interfaces for dependency injection and testing

// SessionService starts mirror sessions.
type SessionService interface {
	StartSession(ctx context.Context, req mirror.SessionRequest) (*models.BackfillJob, error)
}

// ProgressReader reads backfill progress snapshots.
type ProgressReader interface {
	Get(ctx context.Context, jobID string) (*models.BackfillProgress, error)
}

// ChannelStore reads and removes registry records.
type ChannelStore interface {
	List(ctx context.Context) ([]*models.MonitoredChannel, error)
	Delete(ctx context.Context, channelID types.ChannelID) error
}

// WatchRegistry controls the running watch loops.
type WatchRegistry interface {
	Stop(channelID types.ChannelID) error
	Watching(channelID types.ChannelID) bool
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	sessions   SessionService
	progress   ProgressReader
	channels   ChannelStore
	watches    WatchRegistry
	config     *ServerConfig
	log        *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ClientRPS       int
}

// DefaultServerConfig returns sensible defaults for the control surface.
func DefaultServerConfig(host, port string) *ServerConfig {
	return &ServerConfig{
		Host:            host,
		Port:            port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		ClientRPS:       10,
	}
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, sessions SessionService, progress ProgressReader, channels ChannelStore, watches WatchRegistry) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		sessions: sessions,
		progress: progress,
		channels: channels,
		watches:  watches,
		config:   config,
		log:      logging.Default().WithField("component", "api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.ClientRPS)

	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Session endpoints
	api.HandleFunc("/sessions", s.handleStartSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")

	// Channel registry endpoints
	api.HandleFunc("/channels", s.handleListChannels).Methods("GET")
	api.HandleFunc("/channels/{id}", s.handleRemoveChannel).Methods("DELETE")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "channel-mirror",
	})
}

// Router returns the configured router; used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
