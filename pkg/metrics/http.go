package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the registry in the OpenMetrics format when the scraper
// asks for it.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}

type Config struct {
	ServiceName string
	SkipPaths   []string
}

// Middleware records request counts and latency labelled by route template,
// so /accounts/:id collapses to one series.
func Middleware(cfg Config) fiber.Handler {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := skip[c.Path()]; ok {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		httpRequestsTotal.WithLabelValues(cfg.ServiceName, c.Method(), route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(cfg.ServiceName, c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}
