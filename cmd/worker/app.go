package main

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/swap-market/backend/internal/metrics"
	"github.com/swap-market/backend/internal/middleware"
	"github.com/swap-market/backend/internal/scheduler"
	"go.uber.org/zap"
)

// newWorkerApp serves /metrics and /health. Manual job runs are mounted only
// when adminToken is set and require it as a Bearer token.
func newWorkerApp(runner *scheduler.Runner, adminToken string, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", metrics.Handler())
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "running": runner.Running()})
	})

	if adminToken == "" {
		return app
	}
	app.Post("/jobs/:name/run", middleware.AdminTokenMiddleware(adminToken), func(c *fiber.Ctx) error {
		name := c.Params("name")
		n, err := runner.RunNow(c.UserContext(), name)
		if err != nil {
			code := fiber.StatusInternalServerError
			if errors.Is(err, scheduler.ErrUnknownJob) {
				code = fiber.StatusNotFound
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		}
		log.Info("job run on demand", zap.String("job", name), zap.Int64("affected", n))
		return c.JSON(fiber.Map{"job": name, "affected": n})
	})
	return app
}
