package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is anything /health can probe: the postgres pool, a redis client
// adapter.
type Pinger interface {
	Ping(ctx context.Context) error
}

type MetaHandler struct {
	deps    map[string]Pinger
	started time.Time
}

func NewMetaHandler(deps map[string]Pinger) *MetaHandler {
	return &MetaHandler{deps: deps, started: time.Now()}
}

// Health: GET /health. 503 если хотя бы одна зависимость недоступна.
func (h *MetaHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }
