package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swap-market/backend/internal/config"
	"github.com/swap-market/backend/internal/db"
	"github.com/swap-market/backend/internal/events"
	"github.com/swap-market/backend/internal/services"
	"go.uber.org/zap"
)

// Notify Bridge: subscribes to swap notifications published on Redis and
// forwards each one to the notification service.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	client := services.NewNotifyClient(cfg.NotifyServiceURL, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	err = subscriber.Subscribe(ctx, events.StreamNotify, func(event events.Event) {
		sendCtx, cancelSend := context.WithTimeout(ctx, 20*time.Second)
		defer cancelSend()

		err := client.Send(sendCtx, services.NotificationRequest{
			UserID:     event.UserID,
			Event:      event.Type,
			Payload:    event.Payload,
			OccurredAt: event.OccurredAt,
		})
		if err != nil {
			// доставка best-effort, событие не переотправляется
			log.Warn("failed to forward notification",
				zap.String("type", event.Type),
				zap.String("user_id", event.UserID.String()),
				zap.Error(err),
			)
			return
		}
		log.Debug("notification forwarded", zap.String("type", event.Type))
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.String("stream", events.StreamNotify), zap.Error(err))
	}

	log.Info("notify-bridge started", zap.String("target", cfg.NotifyServiceURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}
