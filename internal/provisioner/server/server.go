package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/docindex-go/internal/provisioner/adapters/http/handlers"
	"github.com/docindex-go/internal/provisioner/app/scheduler"
	"github.com/docindex-go/pkg/config"
	"github.com/docindex-go/pkg/logger"
	"github.com/docindex-go/pkg/ratelimit"
	"github.com/docindex-go/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the long running mode: HTTP endpoints plus scheduled drift
// repair.
type Server struct {
	config     *config.Config
	logger     logger.Logger
	httpServer *http.Server
	scheduler  *scheduler.Scheduler
}

func New(cfg *config.Config, h *handlers.ProvisionerHandlers, sched *scheduler.Scheduler, tel *telemetry.Telemetry, log logger.Logger) *Server {
	router := setupRouter(h, cfg.Server.EnsurePerMinute, tel, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &Server{
		config:     cfg,
		logger:     log,
		httpServer: httpServer,
		scheduler:  sched,
	}
}

func setupRouter(h *handlers.ProvisionerHandlers, ensurePerMinute int, tel *telemetry.Telemetry, log logger.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(tel.HTTPMiddleware())
	router.Use(loggingMiddleware(log))

	// Health checks
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/status", h.Status)
	if ensurePerMinute > 0 {
		router.POST("/ensure", ratelimit.Middleware(ratelimit.PerMinute(ensurePerMinute), ratelimit.IPKeyFunc), h.Ensure)
	} else {
		router.POST("/ensure", h.Ensure)
	}

	return router
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	if s.scheduler != nil {
		if err := s.scheduler.Start(); err != nil {
			return err
		}
	}

	s.logger.Info("Starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.Error("Scheduler did not stop in time", "error", err)
		}
	}
	return nil
}

func loggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("HTTP Request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}
