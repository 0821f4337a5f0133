// Package api is the thin HTTP surface over the adapter runtime. It is glue:
// all inputs and outputs are plain structured data, and no gin types leak
// into the core packages.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/assistmesh/adapter-runtime/internal/adapters"
	"github.com/assistmesh/adapter-runtime/internal/adapters/registry"
	"github.com/assistmesh/adapter-runtime/internal/config"
	"github.com/assistmesh/adapter-runtime/internal/monitoring"
	"github.com/assistmesh/adapter-runtime/pkg/observability"
)

// Server exposes the registry over HTTP
type Server struct {
	cfg       config.APIConfig
	registry  *registry.Registry
	health    *monitoring.HealthMonitor
	resources *monitoring.ResourceMonitor
	factories map[string]adapters.Factory
	logger    observability.Logger

	httpServer *http.Server
}

// NewServer creates the HTTP server. factories maps implementation refs
// accepted in register requests to adapter constructors.
func NewServer(
	cfg config.APIConfig,
	reg *registry.Registry,
	health *monitoring.HealthMonitor,
	resources *monitoring.ResourceMonitor,
	factories map[string]adapters.Factory,
	logger observability.Logger,
) *Server {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	s := &Server{
		cfg:       cfg,
		registry:  reg,
		health:    health,
		resources: resources,
		factories: factories,
		logger:    logger.WithPrefix("api"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleLiveness)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/adapters", s.handleRegister)
		v1.GET("/adapters", s.handleList)
		v1.DELETE("/adapters/:id", s.handleUnregister)
		v1.POST("/adapters/:id/execute", s.handleExecute)
		v1.GET("/adapters/:id/health", s.handleHealth)
		v1.GET("/statistics", s.handleStatistics)
		v1.GET("/alerts", s.handleAlerts)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Run serves until the listener fails or Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("HTTP server listening", map[string]interface{}{
		"address": s.cfg.ListenAddress,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
