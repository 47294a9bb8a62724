package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"priceradar/internal/store"
)

var startTime = time.Now()

func registerRoutes(e *echo.Echo, runs store.RunStore, reporter StatusReporter) {
	e.GET("/health", healthHandler)
	e.GET("/status", statusHandler(reporter))
	e.GET("/runs/latest", latestRunHandler(runs))
	e.GET("/usage", usageHandler(runs))
}

// healthHandler answers liveness probes.
func healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime).String(),
	})
}

// statusHandler reports the live orchestrator state.
func statusHandler(reporter StatusReporter) echo.HandlerFunc {
	return func(c echo.Context) error {
		if reporter == nil {
			return c.JSON(http.StatusOK, map[string]interface{}{"state": "idle"})
		}
		return c.JSON(http.StatusOK, reporter.Status())
	}
}

// latestRunHandler serves the most recently persisted crawl run.
func latestRunHandler(runs store.RunStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		run, err := runs.LatestRun(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, run)
	}
}

// usageHandler serves the AI usage record of the latest run.
func usageHandler(runs store.RunStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		run, err := runs.LatestRun(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, run.Usage)
	}
}
