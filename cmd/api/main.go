package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/swap-market/backend/internal/config"
	"github.com/swap-market/backend/internal/db"
	"github.com/swap-market/backend/internal/events"
	apphttp "github.com/swap-market/backend/internal/http"
	"github.com/swap-market/backend/internal/http/handlers"
	"github.com/swap-market/backend/internal/metrics"
	"github.com/swap-market/backend/internal/repositories"
	"github.com/swap-market/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.DBMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	metrics.StartPoolStatsCollector(ctx, pool, 15*time.Second)

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	swapRepo := repositories.NewSwapRepo(pool)
	productRepo := repositories.NewProductRepo(pool)
	ledgerRepo := repositories.NewLedgerRepo(pool)
	idempotencyRepo := repositories.NewIdempotencyRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	notifier := events.NewNotifier(events.NewRedisPublisher(rdb, log))
	quota := services.NewRedisOfferQuota(rdb, cfg.MaxOffersPerDay)
	swapService := services.NewSwapService(swapRepo, productRepo, auditRepo, notifier, quota, log)
	ledgerService := services.NewLedgerService(ledgerRepo, log)
	reconciler := services.NewEscrowReconciler(cfg.PaymentSecrets(), idempotencyRepo, ledgerService, userRepo, productRepo, swapService, auditRepo, log)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, apphttp.Handlers{
		Meta: handlers.NewMetaHandler(map[string]handlers.Pinger{
			"postgres": pool,
			"redis":    handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		}),
		Swap:    handlers.NewSwapHandler(swapService, log),
		Wallet:  handlers.NewWalletHandler(ledgerService, log),
		Webhook: handlers.NewWebhookHandler(reconciler, log),
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
