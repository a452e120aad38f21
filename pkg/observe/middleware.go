package observe

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Middleware returns a Fiber handler that records request duration by
// method, route template and status, and logs slow or failed requests.
// Websocket upgrades are recorded when the connection ends.
func Middleware(m *Metrics, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		m.HTTPRequestDuration.Record(c.UserContext(), duration.Seconds(),
			metric.WithAttributes(
				attribute.String("method", c.Method()),
				attribute.String("route", route),
				attribute.String("status", strconv.Itoa(status)),
			),
		)

		if logger != nil && (status >= 500 || duration > time.Second) {
			logger.Warn("http request",
				"method", c.Method(),
				"route", route,
				"status", status,
				"duration", duration)
		}
		return err
	}
}
