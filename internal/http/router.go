package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/swap-market/backend/internal/config"
	"github.com/swap-market/backend/internal/http/handlers"
	"github.com/swap-market/backend/internal/metrics"
	"github.com/swap-market/backend/internal/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Meta    *handlers.MetaHandler
	Swap    *handlers.SwapHandler
	Wallet  *handlers.WalletHandler
	Webhook *handlers.WebhookHandler
}

// SetupRouter регистрирует middleware и маршруты. rdb может быть nil,
// тогда rate limit не подключается.
func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	h Handlers,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(metrics.Middleware())

	app.Get("/health", h.Meta.Health)
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")

	// Webhooks: аутентификация подписью, не JWT
	api.Post("/payment/webhook/:gateway", h.Webhook.PaymentCallback)

	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret, log))
	if rdb != nil {
		protected.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log))
	}

	// Swaps
	protected.Post("/swaps", h.Swap.CreateSwap)
	protected.Get("/swaps/my-sent", h.Swap.MySent)
	protected.Get("/swaps/my-received", h.Swap.MyReceived)
	protected.Get("/swaps/:id", h.Swap.GetSwap)
	protected.Post("/swaps/:id/accept", h.Swap.AcceptSwap)
	protected.Post("/swaps/:id/reject", h.Swap.RejectSwap)
	protected.Get("/swaps/:id/events", h.Swap.GetSwapEvents)

	// Wallet
	protected.Get("/wallet/ledger", h.Wallet.GetLedger)
}
