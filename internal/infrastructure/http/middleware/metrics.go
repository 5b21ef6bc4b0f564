package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/duragraph/dataflow/internal/infrastructure/monitoring"
)

// Metrics creates a middleware that records Prometheus metrics for HTTP requests.
func Metrics(m *monitoring.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start)
			method := c.Request().Method
			path := c.Path()
			status := strconv.Itoa(c.Response().Status)

			m.RecordHTTPRequest(method, path, status, duration)

			return err
		}
	}
}

// MetricsEndpoint exposes a human-readable pointer to the Prometheus
// scrape endpoint, for callers hitting this route directly instead of
// /metrics.
func MetricsEndpoint() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status": "metrics available at /metrics",
			"help":   "Use Prometheus to scrape this endpoint",
		})
	}
}
