package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"katalog/internal/app"
	"katalog/internal/config"
	"katalog/internal/consumers"
	"katalog/internal/repositories"
	"katalog/internal/services"
	"katalog/pkg/logger"
	"katalog/pkg/rabbitmq"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New(logger.Config{Level: cfg.LogLevel, Env: cfg.AppEnv})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	db, err := app.OpenDatabase(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	zl.Info("database ready", zap.String("driver", cfg.DatabaseDriver))

	productRepo := repositories.NewGORMProductRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	health := map[string]func() string{}

	var publisher services.EventPublisher = services.NopPublisher{}
	var mqClient *rabbitmq.Client
	if cfg.RabbitMQURL != "" {
		mqClient, err = rabbitmq.NewClient(rabbitmq.Config{
			URL:                cfg.RabbitMQURL,
			Exchange:           cfg.RabbitMQExchange,
			DeadLetterExchange: cfg.RabbitMQDeadLetter,
			RetryDelay:         cfg.RabbitMQRetryDelay,
		}, zl)
		if err != nil {
			return err
		}
		defer mqClient.Close()
		publisher = mqClient
		health["rabbitmq"] = mqClient.Status
	}

	productService := services.NewProductService(productRepo, services.ProductServiceConfig{
		Availability: cfg.AvailabilityPolicy,
		Ordering:     cfg.ProductOrdering,
	}, publisher, zl.Named("products"))

	var products services.Products = productService
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		products = services.NewCachedProductService(productService, rdb, cfg.CacheTTL, zl.Named("cache"))
		health["redis"] = func() string {
			if err := rdb.Ping(context.Background()).Err(); err != nil {
				return "unreachable"
			}
			return "connected"
		}
	}

	authService := services.NewAuthService(userRepo, cfg.JWTSecret, zl.Named("auth"))
	if err := authService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	if mqClient != nil {
		consumer := consumers.NewStockAdjustmentConsumer(products, zl.Named("stock-consumer"))
		go func() {
			err := mqClient.Consume(ctx, cfg.RabbitMQStockQueue, consumer.HandleDelivery)
			if err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("stock consumer stopped", zap.Error(err))
			}
		}()
	}

	fiberApp := app.NewApp(app.Deps{
		Products:        products,
		Auth:            authService,
		Authorizer:      cfg.AccessPolicy,
		Logger:          zl,
		PageSize:        cfg.PageSize,
		MaxPageSize:     cfg.MaxPageSize,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		Health:          health,
	})

	errCh := make(chan error, 1)
	go func() {
		zl.Info("starting server", zap.String("addr", cfg.AppPort))
		errCh <- fiberApp.Listen(cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down server")
	if err := fiberApp.ShutdownWithTimeout(10 * time.Second); err != nil {
		zl.Warn("error during fiber shutdown", zap.Error(err))
	}
	zl.Info("server gracefully stopped")
	return nil
}
