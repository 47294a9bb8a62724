package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"priceradar/internal/config"
	"priceradar/internal/store"
	"priceradar/pkg/utils"
)

// StatusReporter exposes the live crawl state to the API without the
// API holding the orchestrator itself.
type StatusReporter interface {
	Status() map[string]interface{}
}

// Server is the optional HTTP status surface: health probes and
// read-only access to the latest persisted run.
type Server struct {
	echo   *echo.Echo
	config *config.Config
	logger *logrus.Logger
}

// NewServer builds the status server against the given run store and
// reporter.
func NewServer(cfg *config.Config, runs store.RunStore, reporter StatusReporter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.OPTIONS},
	}))

	registerRoutes(e, runs, reporter)

	return &Server{
		echo:   e,
		config: cfg,
		logger: utils.GetLogger(),
	}
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.WithField("addr", addr).Info("Status API listening")

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status API failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
