package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"streamsub/internal/metrics"
)

// ServerConfig configures the admin HTTP server, grounded on the teacher's
// api.ServerConfig trimmed to what this surface actually needs (no API key,
// no CORS, no rate limiting — this is a local operator surface, not a
// public API).
type ServerConfig struct {
	Port         int
	Version      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *ServerConfig) setDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

// Server wraps a gin.Engine configured with the diagnostic/admin routes.
type Server struct {
	config     ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer builds an admin Server bound to registry. gin.Recovery recovers
// from handler panics the same way the teacher's api.Server does. collector
// may be nil, in which case GET /metrics is not registered.
func NewServer(config ServerConfig, registry Registry, collector *metrics.Collector, logger zerolog.Logger) *Server {
	config.setDefaults()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger))
	if collector != nil {
		router.Use(metrics.MetricsMiddleware(collector))
	}

	h := NewHandlers(registry, config.Version, time.Now())

	router.GET("/healthz", h.HealthCheck())
	router.GET("/readyz", h.Readiness())
	router.GET("/subscriptions", h.ListSubscriptions())
	router.POST("/subscriptions/:id/reset", h.ResetSubscription())
	router.POST("/subscriptions/tag/:tag/unsubscribe", h.UnsubscribeByTag())
	if collector != nil {
		router.GET("/metrics", metricsHandler(collector))
	}

	return &Server{
		config: config,
		router: router,
		logger: logger,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		},
	}
}

// metricsHandler answers GET /metrics with the Prometheus text exposition
// format, grounded on the teacher's api.Server metrics route.
func metricsHandler(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := collector.Collect()
		if err != nil {
			c.String(http.StatusInternalServerError, "metrics collection failed")
			return
		}
		c.String(http.StatusOK, body)
	}
}

// Router exposes the underlying gin.Engine, mainly for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Start runs the HTTP server until it's shut down or fails.
func (s *Server) Start() error {
	s.logger.Info().Int("port", s.config.Port).Msg("starting admin API")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down admin API")
	return s.httpServer.Shutdown(ctx)
}
