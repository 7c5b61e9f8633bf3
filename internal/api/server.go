// Package api serves assessments and report-index queries over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/index"
	"github.com/hardgate/internal/jobqueue"
)

// Options are the collaborators of a Server.
type Options struct {
	Port   int
	Config *config.Config
	// Runner executes POST /analyze in the background.
	Runner jobqueue.Runner
	Store  jobqueue.Store
	// Execute runs POST /analyze/sync in the request.
	Execute jobqueue.Executor
	// Index may be nil, which behaves like a disabled index.
	Index index.Index
}

// Server represents the API server
type Server struct {
	echo        *echo.Echo
	port        int
	cfg         *config.Config
	runner      jobqueue.Runner
	store       jobqueue.Store
	execute     jobqueue.Executor
	index       index.Index
	collections index.Collections
	now         func() time.Time
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	ix := opts.Index
	if ix == nil {
		ix = index.Disabled{}
	}

	server := &Server{
		echo:        e,
		port:        opts.Port,
		cfg:         opts.Config,
		runner:      opts.Runner,
		store:       opts.Store,
		execute:     opts.Execute,
		index:       ix,
		collections: index.CollectionsFrom(opts.Config.Index),
		now:         time.Now,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/", s.root)
	s.echo.GET("/health", s.health)

	s.echo.POST("/analyze", s.analyze)
	s.echo.POST("/analyze/sync", s.analyzeSync)
	s.echo.GET("/analyze", s.listAssessments)
	s.echo.GET("/analyze/:id", s.getAssessment)
	s.echo.DELETE("/analyze/:id", s.deleteAssessment)

	reports := s.echo.Group("/reports")
	reports.GET("/components", s.listComponents)
	reports.GET("/search", s.searchReports)
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests and
// background assessments.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.port).Msg("Starting API server")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("Shutting down API server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	if err := s.runner.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Assessments still running at shutdown were cancelled")
	}
	return nil
}

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":        "hardgate",
		"description": "Application and platform hard-gate assessment",
		"endpoints": []string{
			"GET /health",
			"POST /analyze",
			"POST /analyze/sync",
			"GET /analyze",
			"GET /analyze/:id",
			"DELETE /analyze/:id",
			"GET /reports/components",
			"GET /reports/search",
		},
	})
}

func (s *Server) health(c echo.Context) error {
	active, err := s.store.Active(c.Request().Context())
	if err != nil {
		log.Warn().Err(err).Msg("Could not count active assessments")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":             "healthy",
		"timestamp":          s.now().UTC().Format(time.RFC3339),
		"llm_configured":     s.cfg.LLM.Configured(),
		"index_enabled":      s.index.Enabled(),
		"active_assessments": active,
	})
}
