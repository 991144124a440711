package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/config"
	"github.com/keeper-escrow/backend/internal/db"
	"github.com/keeper-escrow/backend/internal/events"
	apphttp "github.com/keeper-escrow/backend/internal/http"
	"github.com/keeper-escrow/backend/internal/http/dto"
	"github.com/keeper-escrow/backend/internal/http/handlers"
	"github.com/keeper-escrow/backend/internal/memstore"
	"github.com/keeper-escrow/backend/internal/middleware"
	"github.com/keeper-escrow/backend/internal/repositories"
	"github.com/keeper-escrow/backend/internal/services"
)

type backend struct {
	store      services.Store
	nonces     services.NonceStore
	publisher  events.Publisher
	subscriber events.Subscriber
	rdb        *redis.Client
	close      func()
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer be.close()

	policy := services.TimeoutPolicy{
		MinSeconds: cfg.MinOrderTimeoutSeconds,
		MaxSeconds: cfg.MaxOrderTimeoutSeconds,
	}

	// Services
	orderService := services.NewOrderService(be.store, be.publisher, services.SystemClock{}, policy, log)
	ledgerService := services.NewLedgerService(be.store, log)
	authService := services.NewAuthService(be.nonces, services.SystemClock{}, services.AuthConfig{
		JWTSecret:      cfg.JWTSecret,
		JWTExpiration:  cfg.JWTExpiration,
		Network:        cfg.TONNetwork,
		AllowedDomains: cfg.TONProofAllowedDomains,
		PayloadTTL:     cfg.ProofPayloadTTL,
	}, log)

	// Handlers
	wsHub := handlers.NewWSHub(authService, be.subscriber, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe to order events", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{
				Error:     err.Error(),
				RequestID: middleware.GetRequestID(c),
			})
		},
	})

	apphttp.SetupRouter(app, apphttp.RouterDeps{
		Log:                log,
		Redis:              be.rdb,
		Authn:              authService,
		Admins:             cfg,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AuthHandler:        handlers.NewAuthHandler(authService, log),
		OrderHandler:       handlers.NewOrderHandler(orderService, log),
		LedgerHandler:      handlers.NewLedgerHandler(ledgerService, log),
		WSHub:              wsHub,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr), zap.String("store", cfg.StoreDriver))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

// openBackend wires storage and messaging for the configured driver. The memory driver
// needs neither Postgres nor Redis.
func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		broker := events.NewLocalBroker()
		return &backend{
			store:      memstore.New(),
			nonces:     memstore.NewNonceStore(nil),
			publisher:  broker,
			subscriber: broker,
			close:      func() {},
		}, nil
	}

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &backend{
		store:      repositories.NewStore(pool),
		nonces:     repositories.NewProofPayloadRepo(rdb),
		publisher:  events.NewRedisPublisher(rdb, log),
		subscriber: events.NewRedisSubscriber(rdb, log),
		rdb:        rdb,
		close: func() {
			_ = rdb.Close()
			pool.Close()
		},
	}, nil
}
