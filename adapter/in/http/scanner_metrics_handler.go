package http

import (
	"scanner_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// RegisterMetrics mounts the Prometheus scrape endpoint.
func RegisterMetrics(app fiber.Router, m *metrics.Metrics) {
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
}
