// Package api implements the HTTP API for the crawler service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/storage"
)

// Default server timeouts.
const (
	defaultPort            = 8060
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds HTTP server configuration.
type Config struct {
	Host         string        `mapstructure:"host"          yaml:"host"`
	Port         int           `mapstructure:"port"          yaml:"port"`
	APIKey       string        `mapstructure:"api_key"       yaml:"api_key" json:"-"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	Debug        bool          `mapstructure:"debug"         yaml:"debug"`
}

// WithDefaults returns a copy of the config with defaults applied.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Server serves the runs API.
type Server struct {
	cfg    Config
	log    logger.Interface
	runs   *RunsHandler
	health *HealthHandler
	http   *http.Server
}

// NewServer creates the API server and its route tree.
func NewServer(
	cfg Config,
	store storage.Store,
	dispatcher TaskDispatcher,
	log logger.Interface,
) *Server {
	cfg = cfg.WithDefaults()
	log = log.WithComponent("api")

	s := &Server{
		cfg:    cfg,
		log:    log,
		runs:   NewRunsHandler(store, dispatcher, log),
		health: NewHealthHandler(store, dispatcher),
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(log), SecurityHeaders())

	s.registerRoutes(engine)

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// registerRoutes mounts the route tree.
func (s *Server) registerRoutes(engine *gin.Engine) {
	engine.GET("/health", s.health.Check)

	v1 := engine.Group("/api/v1")
	if s.cfg.APIKey != "" {
		v1.Use(APIKeyAuth(s.cfg.APIKey))
	}

	runs := v1.Group("/runs")
	{
		runs.POST("", s.runs.Create)
		runs.GET("", s.runs.List)
		runs.GET("/:id", s.runs.Get)
		runs.GET("/:id/result", s.runs.Result)
		runs.GET("/:id/source", s.runs.Source)
		runs.GET("/:id/graph", s.runs.Graph)
		runs.GET("/:id/export", s.runs.Export)
		runs.DELETE("/:id", s.runs.Delete)
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("api server listening", "addr", s.http.Addr)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
