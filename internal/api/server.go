// Package api exposes reconciliation over HTTP.
//
// Routes:
//
//	GET  /health              liveness probe
//	POST /api/v1/reconcile    reconcile two ledgers sent as JSON
//
// Every request runs its own reconciliation. The server shares only its
// configuration, the service and the logger between requests.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ledger-reconciler/internal/service"
	"ledger-reconciler/pkg/errors"
	"ledger-reconciler/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Config holds API server configuration
type Config struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
}

// DefaultConfig returns sensible defaults for the API server
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		MaxBodyBytes:   10 << 20,
	}
}

// Validate validates the server configuration
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}

// Server is the HTTP API server
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	service    *service.Service
	logger     logger.Logger
}

// NewServer creates a new API server backed by svc
func NewServer(cfg Config, svc *service.Service, log logger.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "server", cfg, err)
	}
	if svc == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "service", nil, nil)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	s := &Server{
		config:  cfg,
		router:  gin.New(),
		service: svc,
		logger:  log.WithComponent("api"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(RequestID())
	s.router.Use(RequestLogger(s.logger, "/health"))

	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:  s.config.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
			ExposeHeaders: []string{"Content-Length", RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/reconcile", s.reconcile)
	}
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.WithField("addr", addr).Info("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.ServerError(errors.CodeBindFailed, addr, err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router returns the gin engine for testing
func (s *Server) Router() http.Handler {
	return s.router
}
