package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ekemper/leadGen-sub001/internal/logger"
)

const (
	readHeaderTimeout = 10 * time.Second
	healthTimeout     = 5 * time.Second
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string
	// Development switches gin out of release mode.
	Development bool
}

// Server is the orchestrator's HTTP server.
type Server struct {
	httpServer *http.Server
	log        logger.Logger
}

// NewServer builds the router and wraps it in an HTTP server. Checks maps
// dependency names to their health probes; metricsHandler serves /metrics.
func NewServer(
	cfg ServerConfig,
	handler *Handler,
	checks map[string]HealthCheck,
	metricsHandler http.Handler,
	log logger.Logger,
) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger(log))
	router.Use(gin.Recovery())

	router.GET("/health", healthHandler(checks))
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	router.GET("/status/breakers", handler.BreakerStatusHandler)
	router.GET("/status/ratelimits", handler.RateLimitStatusHandler)

	v1 := router.Group("/api/v1")
	campaigns := v1.Group("/campaigns")
	campaigns.POST("", handler.CreateCampaign)
	campaigns.GET("", handler.ListCampaigns)
	campaigns.GET("/:id", handler.GetCampaign)
	campaigns.GET("/:id/jobs", handler.ListCampaignJobs)
	campaigns.GET("/:id/leads", handler.ListCampaignLeads)
	campaigns.POST("/:id/start", handler.StartCampaign)
	campaigns.POST("/:id/pause", handler.PauseCampaign)
	campaigns.POST("/:id/resume", handler.ResumeCampaign)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: log,
	}
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", logger.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		healthy := true
		results := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				healthy = false
				results[name] = gin.H{"status": "unhealthy", "error": err.Error()}
				continue
			}
			results[name] = gin.H{"status": "ok"}
		}

		status := http.StatusOK
		overall := "healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
		}
		c.JSON(status, gin.H{"status": overall, "checks": results})
	}
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("http request",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
		)
	}
}
