// Package httpapi serves read-only engine state and Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candymint/internal/engine"
	"github.com/rovshanmuradov/candymint/internal/notify"
)

// ShutdownTimeout is the maximum time to wait for graceful shutdown
const ShutdownTimeout = 10 * time.Second

// StatusSource is the part of the engine the API reads.
type StatusSource interface {
	Tiers() []string
	Status(tier string) (engine.TierStatus, error)
}

// Server is the HTTP server that exposes tier status, alerts and notifications.
type Server struct {
	router  *gin.Engine
	server  *http.Server
	addr    string
	source  StatusSource
	center  *notify.Center
	metrics http.Handler
	logger  *zap.Logger
}

// NewServer builds the server; metrics may be nil.
func NewServer(addr string, source StatusSource, center *notify.Center, metrics http.Handler, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		router:  router,
		addr:    addr,
		source:  source,
		center:  center,
		metrics: metrics,
		logger:  logger.Named("http-api"),
	}
	router.Use(gin.Recovery(), s.accessLog(), corsMiddleware())
	s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown. It blocks.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("Starting HTTP server", zap.String("address", s.addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	s.logger.Info("HTTP server shut down")
	return nil
}

// corsMiddleware adds CORS headers to all responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
