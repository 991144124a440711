package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/config"
	"github.com/keeper-escrow/backend/internal/db"
	"github.com/keeper-escrow/backend/internal/events"
	"github.com/keeper-escrow/backend/internal/repositories"
	"github.com/keeper-escrow/backend/internal/services"
)

const scanTimeout = time.Minute

// The worker announces expired orders. It never changes order state: expiry is
// evaluated by the API when a party acts on the order.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Fatal("worker requires STORE_DRIVER=postgres", zap.String("driver", cfg.StoreDriver))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	workers := pond.NewPool(cfg.ExpiryWorkers, pond.WithQueueSize(cfg.ExpiryBatchSize))
	defer workers.StopAndWait()

	notifier := services.NewExpiryNotifier(
		repositories.NewStore(pool),
		events.NewRedisPublisher(rdb, log),
		repositories.NewNotificationDedupe(rdb),
		services.SystemClock{},
		workers,
		cfg.ExpiryBatchSize,
		log,
	)

	scheduler := cron.New(cron.WithSeconds(), cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	_, err = scheduler.AddFunc(cfg.ExpiryScanSchedule, func() {
		scanCtx, scanCancel := context.WithTimeout(ctx, scanTimeout)
		defer scanCancel()
		if _, err := notifier.Scan(scanCtx); err != nil {
			log.Error("expiry scan failed", zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal("invalid EXPIRY_SCAN_SCHEDULE", zap.String("schedule", cfg.ExpiryScanSchedule), zap.Error(err))
	}

	scheduler.Start()
	log.Info("worker started",
		zap.String("schedule", cfg.ExpiryScanSchedule),
		zap.Int("workers", cfg.ExpiryWorkers),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	cancel()
	<-scheduler.Stop().Done()
}
