package http

import (
	"strconv"

	"feedback-sync/internal/auth"
	"feedback-sync/internal/feedback/domain/repository"
	"feedback-sync/internal/shared/logger"
	"feedback-sync/internal/shared/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer assembles the dev store app: auth and profile routes, the
// document and listen routes under /v1, and /metrics when gatherer is set.
func NewServer(
	store repository.RemoteStore,
	authModule *auth.AuthModule,
	gatherer prometheus.Gatherer,
	m *metrics.ServerMetrics,
	log logger.Logger,
) *fiber.App {
	if log == nil {
		log = logger.NewNopLogger()
	}
	app := fiber.New(fiber.Config{
		AppName:               "feedback-sync devstore",
		DisableStartupMessage: true,
	})

	mw := authModule.Middleware()
	app.Use(recover.New())
	app.Use(mw.RequestID())
	app.Use(mw.SecurityHeaders())
	if m != nil {
		app.Use(countRequests(m))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/v1")
	authModule.RegisterRoutes(v1)
	NewHTTPHandler(store, log, m).RegisterRoutes(v1, mw)
	return app
}

func countRequests(m *metrics.ServerMetrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		m.Requests.WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).Inc()
		return err
	}
}
