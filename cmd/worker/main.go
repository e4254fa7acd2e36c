package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swap-market/backend/internal/config"
	"github.com/swap-market/backend/internal/db"
	"github.com/swap-market/backend/internal/events"
	"github.com/swap-market/backend/internal/metrics"
	"github.com/swap-market/backend/internal/repositories"
	"github.com/swap-market/backend/internal/scheduler"
	"github.com/swap-market/backend/internal/services"
	"go.uber.org/zap"
)

const (
	jobSwapExpiry    = "swap-expiry"
	jobSwapRetention = "swap-retention"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.DBMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	metrics.StartPoolStatsCollector(ctx, pool, 15*time.Second)

	// Repos + services
	swapRepo := repositories.NewSwapRepo(pool)
	notifier := events.NewNotifier(events.NewRedisPublisher(rdb, log))
	engine := services.NewSwapService(swapRepo, repositories.NewProductRepo(pool), repositories.NewAuditRepo(pool), notifier, nil, log)
	sweeper := services.NewSweepService(swapRepo, engine, log)

	runner := scheduler.NewRunner(log)
	mustRegister(runner, scheduler.Job{
		Name:  jobSwapExpiry,
		Every: cfg.ExpiryInterval,
		Run: func(ctx context.Context) (int64, error) {
			return sweeper.ExpirePending(ctx, cfg.SwapTTL)
		},
	}, log)
	// reaper сдвинут относительно expiry, чтобы не конкурировать за одни строки
	mustRegister(runner, scheduler.Job{
		Name:   jobSwapRetention,
		Every:  cfg.RetentionInterval,
		Offset: cfg.RetentionOffset,
		Run: func(ctx context.Context) (int64, error) {
			return sweeper.PurgeTerminal(ctx, cfg.SwapRetention)
		},
	}, log)

	runner.Start(ctx)
	log.Info("worker started",
		zap.Strings("jobs", runner.Jobs()),
		zap.Duration("swap_ttl", cfg.SwapTTL),
		zap.Duration("swap_retention", cfg.SwapRetention),
	)

	// /metrics, /health и ручной запуск задач
	app := newWorkerApp(runner, cfg.WorkerAdminToken, log)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.WorkerPort)
		if err := app.Listen(addr); err != nil {
			log.Error("worker http server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	cancel()
	runner.Wait()
	_ = app.ShutdownWithTimeout(5 * time.Second)
}

func mustRegister(r *scheduler.Runner, j scheduler.Job, log *zap.Logger) {
	if err := r.Register(j); err != nil {
		log.Fatal("failed to register job", zap.String("job", j.Name), zap.Error(err))
	}
}
